// Package reports renders downloadable certificate documents.
package reports

import (
	"bytes"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/jung-kurt/gofpdf"
	"github.com/stake-plus/trustink/src/types"
)

// pdfText maps typographic runes to ASCII; the core fonts are cp1252 only.
func pdfText(text string) string {
	if text == "" {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch r {
		case '\u2013', '\u00AD':
			b.WriteString("-")
		case '\u2014':
			b.WriteString("--")
		case '\u2018', '\u2019':
			b.WriteString("'")
		case '\u201C', '\u201D':
			b.WriteString("\"")
		case '\u2026':
			b.WriteString("...")
		case '\u00A0':
			b.WriteString(" ")
		case '\u200B', '\u200C', '\u200D', '\uFEFF':
			continue
		default:
			switch {
			case r < 128 && (unicode.IsPrint(r) || r == '\n'):
				b.WriteRune(r)
			case unicode.IsSpace(r):
				b.WriteString(" ")
			default:
				b.WriteString("?")
			}
		}
	}
	return b.String()
}

// Generator renders certificate PDFs. PublicURL prefixes the verify link.
type Generator struct {
	publicURL string
	now       func() time.Time
}

func NewGenerator(publicURL string) *Generator {
	return &Generator{publicURL: strings.TrimRight(publicURL, "/"), now: time.Now}
}

// Filename is the download name for a certificate.
func Filename(verificationID string) string {
	return fmt.Sprintf("TrustInk-%s.pdf", verificationID)
}

// VerifyURL is the public page that re-checks a certificate.
func (g *Generator) VerifyURL(verificationID string) string {
	return g.publicURL + "/verify/" + verificationID
}

// Certificate renders cert as a single A4 page.
func (g *Generator) Certificate(cert *types.Certificate, creator *types.User) ([]byte, error) {
	if cert == nil {
		return nil, fmt.Errorf("certificate is nil")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)
	pdf.SetTitle("TrustInk Certificate "+cert.VerificationID, false)
	pdf.SetAuthor("TrustInk", false)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Arial", "I", 8)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(0, 10, fmt.Sprintf("Generated by TrustInk on %s",
			g.now().UTC().Format("January 2, 2006 15:04 MST")), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 22)
	pdf.SetTextColor(59, 130, 246)
	pdf.CellFormat(0, 14, "Certificate of Human Authorship", "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 11)
	pdf.SetTextColor(90, 90, 90)
	pdf.CellFormat(0, 8, "Issued by TrustInk", "", 1, "C", false, 0, "")
	pdf.Ln(8)

	x := pdf.GetX()
	y := pdf.GetY()
	after := g.statusIcon(pdf, x, y, cert.Status)
	pdf.SetXY(after, y)
	pdf.SetFont("Arial", "B", 14)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 8, statusLine(cert.Status), "", 1, "L", false, 0, "")
	pdf.Ln(6)

	g.field(pdf, "Verification ID", cert.VerificationID)
	g.field(pdf, "Content Title", cert.ContentTitle)
	g.field(pdf, "Creator", cert.CreatorName)
	if creator != nil {
		g.field(pdf, "Creator Trust Score", fmt.Sprintf("%d / 100", creator.TrustScore))
		if creator.IdentityVerified {
			g.field(pdf, "Identity", "Verified")
		}
	}
	g.field(pdf, "Issued", cert.Timestamp.UTC().Format("January 2, 2006 15:04 MST"))
	pdf.Ln(4)

	w, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	boxW := w - left - right
	g.box(pdf, pdf.GetX(), pdf.GetY(), boxW, 220, 235, 255, "Content Hash (SHA-256)", cert.ContentHash)
	pdf.Ln(4)
	g.box(pdf, pdf.GetX(), pdf.GetY(), boxW, 240, 240, 240, "Signature (HMAC-SHA256)", cert.Signature)
	pdf.Ln(4)

	if cert.Status == types.CertificateRevoked {
		reason := "No reason recorded"
		if cert.RevocationReason != nil {
			reason = *cert.RevocationReason
		}
		g.box(pdf, pdf.GetX(), pdf.GetY(), boxW, 255, 220, 220, "Revocation Reason", reason)
		pdf.Ln(4)
	}

	pdf.SetFont("Arial", "", 10)
	pdf.SetTextColor(0, 0, 0)
	pdf.MultiCell(0, 5, "Verify this certificate at:", "", "L", false)
	pdf.SetTextColor(59, 130, 246)
	link := g.VerifyURL(cert.VerificationID)
	pdf.WriteLinkString(5, pdfText(link), link)
	pdf.Ln(6)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render certificate pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func statusLine(status types.CertificateStatus) string {
	if status == types.CertificateRevoked {
		return "This certificate has been REVOKED"
	}
	return "Verified human-authored content"
}

func (g *Generator) field(pdf *gofpdf.Fpdf, label, value string) {
	pdf.SetFont("Arial", "B", 11)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(50, 7, label+":", "", 0, "L", false, 0, "")
	pdf.SetFont("Arial", "", 11)
	pdf.MultiCell(0, 7, pdfText(value), "", "L", false)
}

// statusIcon draws a colored badge and returns the x position after it.
func (g *Generator) statusIcon(pdf *gofpdf.Fpdf, x, y float64, status types.CertificateStatus) float64 {
	const size = 8.0
	fill, border, text := [3]int{220, 255, 220}, [3]int{0, 150, 0}, "OK"
	if status == types.CertificateRevoked {
		fill, border, text = [3]int{255, 220, 220}, [3]int{200, 0, 0}, "X"
	}
	pdf.SetFillColor(fill[0], fill[1], fill[2])
	pdf.Rect(x, y, size, size, "F")
	pdf.SetDrawColor(border[0], border[1], border[2])
	pdf.Rect(x, y, size, size, "D")
	pdf.SetTextColor(border[0], border[1], border[2])
	pdf.SetFont("Arial", "B", 8)
	pdf.SetXY(x+2, y+1)
	pdf.CellFormat(4, 6, text, "", 0, "C", false, 0, "")
	pdf.SetTextColor(0, 0, 0)
	return x + size + 3
}

// box draws a shaded, bordered box sized to its content and moves below it.
func (g *Generator) box(pdf *gofpdf.Fpdf, x, y, w float64, red, green, blue int, title, content string) {
	content = pdfText(content)
	pdf.SetFont("Courier", "", 9)
	lines := len(pdf.SplitText(content, w-6))
	if lines < 1 {
		lines = 1
	}
	h := 10 + float64(lines)*4.5 + 3

	pdf.SetFillColor(red, green, blue)
	pdf.Rect(x, y, w, h, "F")
	pdf.SetDrawColor(0, 0, 0)
	pdf.SetLineWidth(0.3)
	pdf.Rect(x, y, w, h, "D")

	pdf.SetXY(x+3, y+3)
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(w-6, 5, title, "", 0, "L", false, 0, "")
	pdf.SetXY(x+3, y+9)
	pdf.SetFont("Courier", "", 9)
	pdf.MultiCell(w-6, 4.5, content, "", "L", false)
	pdf.SetXY(x, y+h)
}
