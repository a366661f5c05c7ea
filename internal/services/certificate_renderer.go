package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
)

// Размер карточки сертификата в пунктах
const (
	certCardWidth  = 600.0
	certCardHeight = 380.0
	certFontFamily = "CertFont"
	maxImageBytes  = 10 << 20
)

var defaultCardColor = [3]int{0x5B, 0x3A, 0x6E}

// CertificateView данные для отрисовки сертификата
type CertificateView struct {
	Title         string
	Code          string
	RecipientName string
	SenderName    string
	Message       string
	Amount        int64
	Currency      string
	CompanyLabel  string
	Address       string
	ValidUntil    time.Time
	Background    string // URL или путь к файлу
	TextColor     string // #RRGGBB
	Font          string // имя TTF рядом с основным шрифтом
}

// CertificateRenderer рисует PDF сертификата
type CertificateRenderer struct {
	fontPath string
	client   *http.Client
}

// NewCertificateRenderer создает рендерер. Без шрифта с кириллицей используется Helvetica
func NewCertificateRenderer(fontPath string) *CertificateRenderer {
	if fontPath == "" {
		log.Println("⚠️ CERT_FONT_PATH не задан: кириллица в PDF будет заменена")
	}
	return &CertificateRenderer{
		fontPath: fontPath,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

// Render возвращает байты PDF
func (r *CertificateRenderer) Render(ctx context.Context, v CertificateView) ([]byte, error) {
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           fpdf.SizeType{Wd: certCardWidth, Ht: certCardHeight},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetTitle(v.Title, true)
	pdf.SetCreator("giftspa", true)
	pdf.AddPage()

	family, tr := r.setupFont(pdf, v.Font)

	r.drawBackground(ctx, pdf, v.Background)

	// Затемнение слева направо, чтобы текст читался на любом фоне
	pdf.SetAlpha(0.6, "Normal")
	pdf.LinearGradient(0, 0, certCardWidth, certCardHeight, 20, 14, 28, 90, 70, 100, 0, 0, 1, 0)
	pdf.SetAlpha(1, "Normal")

	red, green, blue := parseHexColor(v.TextColor)
	pdf.SetTextColor(red, green, blue)

	left := 36.0
	width := certCardWidth - 2*left

	pdf.SetFont(family, "", 11)
	pdf.SetXY(left, 30)
	pdf.CellFormat(width, 14, tr(strings.ToUpper(v.CompanyLabel)), "", 0, "L", false, 0, "")
	pdf.SetXY(left, 30)
	pdf.CellFormat(width, 14, tr(v.Code), "", 0, "R", false, 0, "")

	pdf.SetFont(family, "", 30)
	pdf.SetXY(left, 58)
	pdf.CellFormat(width, 34, tr("Подарочный сертификат"), "", 0, "L", false, 0, "")

	pdf.SetFont(family, "", 13)
	pdf.SetXY(left, 98)
	pdf.MultiCell(width, 16, tr(v.Title), "", "L", false)

	y := pdf.GetY() + 14
	if v.RecipientName != "" {
		pdf.SetFont(family, "", 22)
		pdf.SetXY(left, y)
		pdf.CellFormat(width, 26, tr("Для: "+v.RecipientName), "", 0, "L", false, 0, "")
		y += 30
	}
	if v.SenderName != "" {
		pdf.SetFont(family, "", 12)
		pdf.SetXY(left, y)
		pdf.CellFormat(width, 16, tr("От: "+v.SenderName), "", 0, "L", false, 0, "")
		y += 20
	}
	if v.Message != "" {
		pdf.SetFont(family, "", 11)
		pdf.SetXY(left, y)
		pdf.MultiCell(width, 14, tr(truncateRunes(v.Message, 240)), "", "L", false)
	}

	amount := FormatMoney(v.Amount, v.Currency)
	if family != certFontFamily {
		amount = ruPrinter.Sprintf("%d", v.Amount) + " " + strings.ToUpper(firstNonEmpty(v.Currency, "KZT"))
	}
	pdf.SetFont(family, "", 32)
	pdf.SetXY(left, certCardHeight-110)
	pdf.CellFormat(width, 36, tr(amount), "", 0, "L", false, 0, "")

	pdf.SetFont(family, "", 10)
	pdf.SetXY(left, certCardHeight-62)
	pdf.CellFormat(width, 13, tr(v.Address), "", 0, "L", false, 0, "")
	pdf.SetXY(left, certCardHeight-46)
	pdf.CellFormat(width, 13, tr("Действителен до "+v.ValidUntil.Format("02.01.2006")), "", 0, "L", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("ошибка генерации PDF: %w", err)
	}
	return buf.Bytes(), nil
}

// setupFont подключает TTF с кириллицей, иначе откатывается на Helvetica с переводом в cp1252
func (r *CertificateRenderer) setupFont(pdf *fpdf.Fpdf, templateFont string) (string, func(string) string) {
	identity := func(s string) string { return s }

	paths := make([]string, 0, 2)
	if templateFont != "" && r.fontPath != "" {
		paths = append(paths, filepath.Join(filepath.Dir(r.fontPath), templateFont+".ttf"))
	}
	if r.fontPath != "" {
		paths = append(paths, r.fontPath)
	}

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		pdf.AddUTF8FontFromBytes(certFontFamily, "", data)
		if pdf.Err() {
			log.Printf("⚠️ Не удалось подключить шрифт %s: %v", path, pdf.Error())
			pdf.ClearError()
			continue
		}
		return certFontFamily, identity
	}

	return "Helvetica", pdf.UnicodeTranslatorFromDescriptor("")
}

// drawBackground кладет фон из URL или файла, при любой ошибке заливает сплошным цветом
func (r *CertificateRenderer) drawBackground(ctx context.Context, pdf *fpdf.Fpdf, source string) {
	pdf.SetFillColor(defaultCardColor[0], defaultCardColor[1], defaultCardColor[2])
	pdf.Rect(0, 0, certCardWidth, certCardHeight, "F")

	if source == "" {
		return
	}
	data, err := r.loadImage(ctx, source)
	if err != nil {
		log.Printf("⚠️ Фон сертификата недоступен (%s): %v", source, err)
		return
	}

	imageType := ""
	switch http.DetectContentType(data) {
	case "image/jpeg":
		imageType = "JPG"
	case "image/png":
		imageType = "PNG"
	case "image/gif":
		imageType = "GIF"
	default:
		log.Printf("⚠️ Неподдерживаемый формат фона сертификата: %s", source)
		return
	}

	opts := fpdf.ImageOptions{ImageType: imageType}
	pdf.RegisterImageOptionsReader("background", opts, bytes.NewReader(data))
	if pdf.Err() {
		log.Printf("⚠️ Ошибка разбора фона сертификата: %v", pdf.Error())
		pdf.ClearError()
		return
	}
	pdf.ImageOptions("background", 0, 0, certCardWidth, certCardHeight, false, opts, 0, "")
}

func (r *CertificateRenderer) loadImage(ctx context.Context, source string) ([]byte, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return nil, err
		}
		resp, err := r.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("статус %d", resp.StatusCode)
		}
		return io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	}
	return os.ReadFile(source)
}

func parseHexColor(hex string) (int, int, int) {
	hex = strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if len(hex) != 6 {
		return 255, 255, 255
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 255, 255, 255
	}
	return int(v >> 16 & 0xFF), int(v >> 8 & 0xFF), int(v & 0xFF)
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
