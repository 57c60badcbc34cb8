package prompt

import (
	"fmt"
	"strings"

	"frameart/internal/domain"
)

const (
	geminiProviderName = "gemini"
	openAIProviderName = "openai"
)

const creativeSystemPrompt = "You are an imaginative prompt generator for image creation."

const visionSystemPrompt = "You are a prompt writer for an AI image generator. " +
	"Given an image, write a rich, detailed prompt of 3-6 short sentences. " +
	"Describe the main subject, setting, composition (foreground / midground / background), " +
	"lighting, colors, mood, and overall style (e.g., realistic photo, oil painting, watercolor). " +
	"Use concrete, visual language and avoid generic words like 'beautiful' or 'nice'. " +
	"Do NOT mention 'photo', 'image', 'picture', 'in this image', or the act of describing. " +
	"Write it exactly as you would feed it to a text-to-image model."

const visionUserPrompt = "Describe this image as a detailed prompt for a text-to-image model. " +
	"Be specific about subject, setting, lighting, colors, mood, and style."

// QuirkInstructions maps a quirkiness level to the scene variety hint.
var QuirkInstructions = map[int]string{
	0: "Keep the scene entirely realistic and grounded in the real world.",
	1: "Add a subtle creative twist or unexpectedly charming detail.",
	2: "Introduce a whimsical or imaginative element that still fits the scene.",
	3: "Allow surreal, dreamlike, or delightfully odd elements, while keeping the scene coherent.",
}

func buildCreativeInstruction(req CreativeRequest) string {
	quirk, ok := QuirkInstructions[req.Quirk]
	if !ok {
		quirk = QuirkInstructions[0]
	}

	sb := &strings.Builder{}
	sb.WriteString("You will generate exactly ONE imaginative, varied scene description based on the following theme:\n\n")
	fmt.Fprintf(sb, "%q\n\n", strings.TrimSpace(req.Theme))
	fmt.Fprintf(sb, "Scene variety instruction:\n- %s\n\n", quirk)
	sb.WriteString("Rules:\n")
	sb.WriteString("- Output only ONE prompt. No lists, no numbering.\n")
	sb.WriteString("- Select only ONE or TWO elements from the theme, not all of them.\n")
	sb.WriteString("- Keep it concise: 2-4 sentences max.\n")
	sb.WriteString("- Describe a single coherent visual scene with a clear mood.\n")
	if style := strings.TrimSpace(req.Style); style != "" {
		fmt.Fprintf(sb, "- The image MUST be rendered in this artistic style: %q. Incorporate the visual qualities of this style into the scene description.\n", style)
	} else {
		sb.WriteString("- Use a photo-realistic style.\n")
	}
	if comp := strings.TrimSpace(req.Composition); comp != "" {
		fmt.Fprintf(sb, "- Use this composition/camera angle: %q.\n", comp)
	}
	sb.WriteString("- Do NOT repeat any recent prompts shown below.\n")
	avoid := "(none yet)"
	if len(req.AvoidSubjects) > 0 {
		avoid = strings.Join(req.AvoidSubjects, ", ")
	}
	fmt.Fprintf(sb, "- Do NOT feature any of these recently used subjects: %s. Pick something DIFFERENT from the theme.\n", avoid)
	sb.WriteString("- Do NOT mention these instructions or the theme directly.\n")
	sb.WriteString("- On the LAST line, write \"Subjects:\" followed by a comma-separated list of the 1-3 main subjects you chose, most prominent first (e.g. \"Subjects: vineyard, stone farmhouse\").\n\n")
	sb.WriteString("Recent prompts:\n")
	if len(req.RecentPrompts) == 0 {
		sb.WriteString("(none yet)\n")
	}
	for _, p := range req.RecentPrompts {
		fmt.Fprintf(sb, "- %s\n", p)
	}
	return sb.String()
}

// splitSubjects strips a trailing "Subjects:" line and returns the remaining
// prompt and the lowercased subject tags.
func splitSubjects(raw string) (string, []string) {
	text := trimCodeFence(raw)
	lines := strings.Split(text, "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if !strings.HasPrefix(strings.ToLower(last), "subjects:") {
		return text, nil
	}
	_, list, _ := strings.Cut(last, ":")
	subjects := normalizeSubjects(strings.Split(list, ","))
	return strings.TrimSpace(strings.Join(lines[:len(lines)-1], "\n")), subjects
}

func normalizeSubjects(items []string) []string {
	seen := make(map[string]struct{})
	var result []string
	for _, s := range items {
		s = strings.ToLower(strings.Trim(strings.TrimSpace(s), ".\"'"))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		result = append(result, s)
	}
	return result
}

func coalesce(values ...string) string {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			return v
		}
	}
	return ""
}

func trimCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```text")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}

func failure(provider, reason string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s %s", domain.ErrPromptGenerationFailed, provider, reason)
	}
	return fmt.Errorf("%w: %s %s: %w", domain.ErrPromptGenerationFailed, provider, reason, err)
}

func referenceMIME(ref Reference) string {
	if mime := strings.TrimSpace(ref.MIME); mime != "" {
		return mime
	}
	return "image/jpeg"
}
