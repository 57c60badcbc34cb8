package domain

import (
	"fmt"
	"image"
	"time"
)

// Device compliance constants for the frame. They are fixed configuration,
// not derived from the generated image.
const (
	TargetWidth      = 3840
	TargetHeight     = 2160
	TargetAspect     = "16:9"
	ColorProfileSRGB = "sRGB"
	FormatJPEG       = "image/jpeg"
)

// AssetKind enumerates asset types.
type AssetKind string

const (
	AssetKindImage AssetKind = "image"
	AssetKindVideo AssetKind = "video"
)

// RawImage is the output of an image-generation collaborator at its native
// resolution. It is owned by the normalization step. Data holds the encoded
// payload; renderers that already hold pixels set Pixels instead.
type RawImage struct {
	Data     []byte
	Pixels   image.Image
	MIME     string
	Width    int
	Height   int
	Provider string
	Model    string
}

// AssetID identifies a compliant still. Two assets are the same still only if
// both the sequence number and the content hash match.
type AssetID struct {
	Seq  int
	Hash string
}

// IsZero reports whether the id refers to no asset.
func (id AssetID) IsZero() bool {
	return id.Seq == 0 && id.Hash == ""
}

func (id AssetID) String() string {
	if id.IsZero() {
		return "none"
	}
	hash := id.Hash
	if len(hash) > 12 {
		hash = hash[:12]
	}
	return fmt.Sprintf("%03d@%s", id.Seq, hash)
}

// CompliantAsset is a device-ready still. Immutable once written.
type CompliantAsset struct {
	Seq          int
	Hash         string
	Width        int
	Height       int
	ColorProfile string
	Format       string
	Data         []byte
	StorageKey   string
	Prompt       string
	CreatedAt    time.Time
}

// ID returns the identity of the asset.
func (a CompliantAsset) ID() AssetID {
	return AssetID{Seq: a.Seq, Hash: a.Hash}
}

// IsZero reports whether the asset is unset.
func (a CompliantAsset) IsZero() bool {
	return a.ID().IsZero()
}

// DerivedArtifact is media rendered from a compliant still, e.g. a Ken Burns
// video. It is valid only while Source equals the current still's identity.
type DerivedArtifact struct {
	Source     AssetID
	Kind       AssetKind
	Format     string
	StorageKey string
	Data       []byte
	Length     time.Duration
	CreatedAt  time.Time
}

// IsZero reports whether the artifact is unset.
func (d DerivedArtifact) IsZero() bool {
	return d.Source.IsZero() && d.StorageKey == "" && len(d.Data) == 0
}
