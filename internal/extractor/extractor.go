package extractor

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/unidoc/unioffice/document"
	"github.com/unidoc/unioffice/spreadsheet"
	pdfextractor "github.com/unidoc/unipdf/v3/extractor"
	pdfmodel "github.com/unidoc/unipdf/v3/model"
)

// TextExtractor 文本提取器接口
type TextExtractor interface {
	Extract(reader io.Reader, filename string) (string, error)
	Supports(filename string) bool
}

// PlainTextExtractor 纯文本提取器
type PlainTextExtractor struct{}

func (e *PlainTextExtractor) Supports(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".txt" || ext == ".md" || ext == ".markdown"
}

func (e *PlainTextExtractor) Extract(reader io.Reader, filename string) (string, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("读取文件失败: %w", err)
	}
	return string(content), nil
}

// PDFExtractor PDF文本提取器
type PDFExtractor struct{}

func (e *PDFExtractor) Supports(filename string) bool {
	return strings.ToLower(filepath.Ext(filename)) == ".pdf"
}

func (e *PDFExtractor) Extract(reader io.Reader, filename string) (string, error) {
	pdfBytes, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("读取PDF文件失败: %w", err)
	}

	pdfReader, err := pdfmodel.NewPdfReader(bytes.NewReader(pdfBytes))
	if err != nil {
		return "", fmt.Errorf("解析PDF失败: %w", err)
	}

	numPages, err := pdfReader.GetNumPages()
	if err != nil {
		return "", fmt.Errorf("获取PDF页数失败: %w", err)
	}

	// 单页提取失败跳过，不让坏页拖垮整份文档
	var textBuilder strings.Builder
	for i := 1; i <= numPages; i++ {
		page, err := pdfReader.GetPage(i)
		if err != nil {
			continue
		}

		ex, err := pdfextractor.New(page)
		if err != nil {
			continue
		}

		text, err := ex.ExtractText()
		if err != nil {
			continue
		}

		textBuilder.WriteString(text)
		textBuilder.WriteString("\n")
	}

	return textBuilder.String(), nil
}

// DocxExtractor Word文档文本提取器
type DocxExtractor struct{}

func (e *DocxExtractor) Supports(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".docx" || ext == ".doc"
}

func (e *DocxExtractor) Extract(reader io.Reader, filename string) (string, error) {
	docBytes, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("读取Word文件失败: %w", err)
	}

	if strings.ToLower(filepath.Ext(filename)) == ".doc" {
		return "", fmt.Errorf("暂不支持.doc格式，请使用.docx格式")
	}

	readerAt := bytes.NewReader(docBytes)
	doc, err := document.Read(readerAt, int64(len(docBytes)))
	if err != nil {
		return "", fmt.Errorf("解析Word文档失败: %w", err)
	}
	defer doc.Close()

	var textBuilder strings.Builder
	for _, para := range doc.Paragraphs() {
		for _, run := range para.Runs() {
			textBuilder.WriteString(run.Text())
		}
		textBuilder.WriteString("\n")
	}

	return textBuilder.String(), nil
}

// XlsxExtractor Excel文本提取器
type XlsxExtractor struct{}

func (e *XlsxExtractor) Supports(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".xlsx" || ext == ".xls"
}

func (e *XlsxExtractor) Extract(reader io.Reader, filename string) (string, error) {
	excelBytes, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("读取Excel文件失败: %w", err)
	}

	if strings.ToLower(filepath.Ext(filename)) == ".xls" {
		return "", fmt.Errorf("暂不支持.xls格式，请使用.xlsx格式")
	}

	readerAt := bytes.NewReader(excelBytes)
	ss, err := spreadsheet.Read(readerAt, int64(len(excelBytes)))
	if err != nil {
		return "", fmt.Errorf("解析Excel文档失败: %w", err)
	}
	defer ss.Close()

	var textBuilder strings.Builder
	for _, sheet := range ss.Sheets() {
		textBuilder.WriteString(fmt.Sprintf("工作表: %s\n", sheet.Name()))

		for _, row := range sheet.Rows() {
			var rowText []string
			for _, cell := range row.Cells() {
				rowText = append(rowText, cell.GetString())
			}
			if len(rowText) > 0 {
				textBuilder.WriteString(strings.Join(rowText, "\t"))
				textBuilder.WriteString("\n")
			}
		}
		textBuilder.WriteString("\n")
	}

	return textBuilder.String(), nil
}

// Manager 按文件名路由到对应的提取器
type Manager struct {
	extractors []TextExtractor
}

// NewManager 创建文本提取器管理器
func NewManager() *Manager {
	return &Manager{
		extractors: []TextExtractor{
			&PDFExtractor{},
			&DocxExtractor{},
			&XlsxExtractor{},
			&PlainTextExtractor{},
		},
	}
}

// Extract 提取文件文本内容
func (m *Manager) Extract(reader io.Reader, filename string) (string, error) {
	for _, e := range m.extractors {
		if e.Supports(filename) {
			return e.Extract(reader, filename)
		}
	}
	return "", fmt.Errorf("不支持的文件格式: %s", filename)
}

// Supports 判断文件格式是否可解析
func (m *Manager) Supports(filename string) bool {
	for _, e := range m.extractors {
		if e.Supports(filename) {
			return true
		}
	}
	return false
}

// SupportedFormats 返回支持的文件扩展名
func (m *Manager) SupportedFormats() []string {
	return []string{".pdf", ".docx", ".doc", ".xlsx", ".xls", ".txt", ".md", ".markdown"}
}
