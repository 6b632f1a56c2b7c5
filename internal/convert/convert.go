// Package convert re-encodes document images the vision providers reject
// (BMP, TIFF, HEIC) as JPEG before upload.
package convert

import (
	"bytes"
	"image"
	"image/jpeg"
	"os"
	"os/exec"

	// Decoders for formats Go can read natively.
	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Quality is the JPEG quality used for converted documents.
const Quality = 92

type converter struct {
	name string
	args func(in, out string) []string
}

// Tried in order for formats Go cannot decode (HEIC/HEIF).
var converters = []converter{
	{"sips", func(in, out string) []string { return []string{"-s", "format", "jpeg", in, "--out", out} }},
	{"magick", func(in, out string) []string { return []string{in, out} }},
	{"convert", func(in, out string) []string { return []string{in, out} }},
}

// ToJPEG decodes an image and re-encodes it as JPEG. Formats Go cannot
// decode are handed to sips or ImageMagick when one is installed.
func ToJPEG(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		converted, convErr := external(data)
		if convErr != nil {
			return nil, eris.Wrapf(err, "decode image (conversion also failed: %v)", convErr)
		}
		zap.L().Debug("converted image with external tool",
			zap.Int("input_bytes", len(data)), zap.Int("output_bytes", len(converted)))
		return converted, nil
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: Quality}); err != nil {
		return nil, eris.Wrap(err, "encode jpeg")
	}
	return buf.Bytes(), nil
}

func external(data []byte) ([]byte, error) {
	for _, conv := range converters {
		bin, err := exec.LookPath(conv.name)
		if err != nil {
			continue
		}
		out, err := run(bin, conv.args, data)
		if err != nil {
			zap.L().Warn("image conversion failed", zap.String("tool", conv.name), zap.Error(err))
			continue
		}
		return out, nil
	}
	return nil, eris.New("no image converter available (tried sips, magick, convert)")
}

func run(bin string, argsFn func(in, out string) []string, data []byte) ([]byte, error) {
	in, err := os.CreateTemp("", "docuflow-in-*")
	if err != nil {
		return nil, eris.Wrap(err, "create temp input")
	}
	defer os.Remove(in.Name())

	if _, err := in.Write(data); err != nil {
		in.Close()
		return nil, eris.Wrap(err, "write temp input")
	}
	in.Close()

	outPath := in.Name() + ".jpg"
	defer os.Remove(outPath)

	if output, err := exec.Command(bin, argsFn(in.Name(), outPath)...).CombinedOutput(); err != nil {
		return nil, eris.Wrapf(err, "%s: %s", bin, output)
	}
	out, err := os.ReadFile(outPath)
	if err != nil {
		return nil, eris.Wrap(err, "read converted output")
	}
	return out, nil
}
