package convert

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io"

	"github.com/phpdave11/gofpdf"
)

// encodePDF writes the image as a single-page PDF, page sized to the image at
// 72 dpi. The pixels travel as an embedded PNG so transparency survives.
func encodePDF(w io.Writer, img image.Image) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("encode page image: %w", err)
	}

	b := img.Bounds()
	pw, ph := float64(b.Dx()), float64(b.Dy())

	pdf := gofpdf.NewCustom(&gofpdf.InitType{UnitStr: "pt"})
	pdf.SetMargins(0, 0, 0)
	pdf.AddPageFormat("P", gofpdf.SizeType{Wd: pw, Ht: ph})

	opt := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
	pdf.RegisterImageOptionsReader("page", opt, &buf)
	pdf.ImageOptions("page", 0, 0, pw, ph, false, opt, 0, "")

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}
