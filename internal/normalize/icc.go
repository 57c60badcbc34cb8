package normalize

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
)

// iccMarker prefixes every APP2 segment carrying an ICC profile chunk.
const iccMarker = "ICC_PROFILE\x00"

const maxICCChunk = 0xffff - 2 - len(iccMarker) - 2

// SRGBProfile is an ICC v2.1 display profile for sRGB IEC61966-2.1 with
// D50-adapted primaries and a sampled transfer curve.
var SRGBProfile = buildSRGBProfile()

// EmbedICC inserts profile as APP2 segments directly after the SOI marker.
func EmbedICC(jpegData, profile []byte) ([]byte, error) {
	if len(jpegData) < 4 || jpegData[0] != 0xff || jpegData[1] != 0xd8 {
		return nil, errors.New("icc: payload is not a jpeg stream")
	}
	if len(profile) == 0 {
		return jpegData, nil
	}
	count := (len(profile) + maxICCChunk - 1) / maxICCChunk
	if count > 255 {
		return nil, errors.New("icc: profile too large")
	}

	var out bytes.Buffer
	out.Grow(len(jpegData) + len(profile) + count*(4+len(iccMarker)+2))
	out.Write(jpegData[:2])
	for i := 0; i < count; i++ {
		chunk := profile[i*maxICCChunk : min((i+1)*maxICCChunk, len(profile))]
		out.Write([]byte{0xff, 0xe2})
		_ = binary.Write(&out, binary.BigEndian, uint16(2+len(iccMarker)+2+len(chunk)))
		out.WriteString(iccMarker)
		out.WriteByte(byte(i + 1))
		out.WriteByte(byte(count))
		out.Write(chunk)
	}
	out.Write(jpegData[2:])
	return out.Bytes(), nil
}

type iccTag struct {
	sig  string
	data []byte
}

func buildSRGBProfile() []byte {
	trc := curveTag(1024)
	tags := []iccTag{
		{"desc", descTag("sRGB IEC61966-2.1")},
		{"cprt", textTag("No copyright, use freely")},
		{"wtpt", xyzTag(0.9642, 1.0, 0.8249)},
		{"rXYZ", xyzTag(0.4361, 0.2225, 0.0139)},
		{"gXYZ", xyzTag(0.3851, 0.7169, 0.0971)},
		{"bXYZ", xyzTag(0.1431, 0.0606, 0.7141)},
		{"rTRC", trc},
		{"gTRC", trc},
		{"bTRC", trc},
	}

	const headerSize = 128
	offset := headerSize + 4 + 12*len(tags)
	var table, data bytes.Buffer
	_ = binary.Write(&table, binary.BigEndian, uint32(len(tags)))
	shared := map[*byte]uint32{}
	for _, t := range tags {
		at, ok := shared[&t.data[0]]
		if !ok {
			at = uint32(offset + data.Len())
			shared[&t.data[0]] = at
			data.Write(t.data)
			for data.Len()%4 != 0 {
				data.WriteByte(0)
			}
		}
		table.WriteString(t.sig)
		_ = binary.Write(&table, binary.BigEndian, at)
		_ = binary.Write(&table, binary.BigEndian, uint32(len(t.data)))
	}

	size := headerSize + table.Len() + data.Len()
	header := make([]byte, headerSize)
	binary.BigEndian.PutUint32(header[0:], uint32(size))
	binary.BigEndian.PutUint32(header[8:], 0x02100000)
	copy(header[12:], "mntr")
	copy(header[16:], "RGB ")
	copy(header[20:], "XYZ ")
	for i, v := range []uint16{2024, 1, 1, 0, 0, 0} {
		binary.BigEndian.PutUint16(header[24+2*i:], v)
	}
	copy(header[36:], "acsp")
	copy(header[68:], xyzNumbers(0.9642, 1.0, 0.8249))

	out := make([]byte, 0, size)
	out = append(out, header...)
	out = append(out, table.Bytes()...)
	out = append(out, data.Bytes()...)
	return out
}

func descTag(text string) []byte {
	var b bytes.Buffer
	b.WriteString("desc")
	b.Write(make([]byte, 4))
	_ = binary.Write(&b, binary.BigEndian, uint32(len(text)+1))
	b.WriteString(text)
	b.WriteByte(0)
	// Empty unicode and scriptcode records.
	b.Write(make([]byte, 4+4+2+1+67))
	return b.Bytes()
}

func textTag(text string) []byte {
	var b bytes.Buffer
	b.WriteString("text")
	b.Write(make([]byte, 4))
	b.WriteString(text)
	b.WriteByte(0)
	return b.Bytes()
}

func xyzTag(x, y, z float64) []byte {
	b := make([]byte, 0, 20)
	b = append(b, "XYZ "...)
	b = append(b, 0, 0, 0, 0)
	return append(b, xyzNumbers(x, y, z)...)
}

func xyzNumbers(x, y, z float64) []byte {
	b := make([]byte, 12)
	for i, v := range []float64{x, y, z} {
		binary.BigEndian.PutUint32(b[4*i:], uint32(int32(math.Round(v*65536))))
	}
	return b
}

// curveTag samples the sRGB transfer function.
func curveTag(n int) []byte {
	b := make([]byte, 12+2*n)
	copy(b, "curv")
	binary.BigEndian.PutUint32(b[8:], uint32(n))
	for i := 0; i < n; i++ {
		v := float64(i) / float64(n-1)
		var lin float64
		if v <= 0.04045 {
			lin = v / 12.92
		} else {
			lin = math.Pow((v+0.055)/1.055, 2.4)
		}
		binary.BigEndian.PutUint16(b[12+2*i:], uint16(math.Round(lin*0xffff)))
	}
	return b
}
