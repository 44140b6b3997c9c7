package writer

import (
	"encoding/json"
	"fmt"
	"strings"

	"parser2gis/internal/logger"

	"github.com/tidwall/gjson"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Sheet1"

// column 表格的一列及其取值方式
type column struct {
	title string
	value func(item gjson.Result) any
}

func field(p string) func(gjson.Result) any {
	return func(item gjson.Result) any { return item.Get(p).String() }
}

func admDiv(kind string) func(gjson.Result) any {
	return func(item gjson.Result) any {
		for _, d := range item.Get("adm_div").Array() {
			if d.Get("type").String() == kind {
				return d.Get("name").String()
			}
		}
		return ""
	}
}

func contacts(kind string) func(gjson.Result) any {
	return func(item gjson.Result) any {
		var values []string
		for _, group := range item.Get("contact_groups").Array() {
			for _, c := range group.Get("contacts").Array() {
				if c.Get("type").String() != kind {
					continue
				}
				v := c.Get("value").String()
				if t := c.Get("text").String(); t != "" && kind != "phone" {
					v = t
				}
				values = append(values, v)
			}
		}
		return strings.Join(values, ", ")
	}
}

func number(p string) func(gjson.Result) any {
	return func(item gjson.Result) any {
		if v := item.Get(p); v.Exists() {
			return v.Float()
		}
		return ""
	}
}

var columns = []column{
	{"Наименование", field("name_ex.primary")},
	{"Описание", field("name_ex.extension")},
	{"Рубрики", func(item gjson.Result) any {
		var names []string
		for _, r := range item.Get("rubrics.#.name").Array() {
			names = append(names, r.String())
		}
		return strings.Join(names, "; ")
	}},
	{"Адрес", field("address_name")},
	{"Комментарий к адресу", field("address_comment")},
	{"Почтовый индекс", field("address.postcode")},
	{"Микрорайон", admDiv("living_area")},
	{"Район", admDiv("district")},
	{"Город", admDiv("city")},
	{"Округ", admDiv("district_area")},
	{"Регион", admDiv("region")},
	{"Страна", admDiv("country")},
	{"Часовой пояс", field("timezone_offset")},
	{"Телефон", contacts("phone")},
	{"E-mail", contacts("email")},
	{"Веб-сайт", contacts("website")},
	{"ВКонтакте", contacts("vkontakte")},
	{"Telegram", contacts("telegram")},
	{"Широта", number("point.lat")},
	{"Долгота", number("point.lon")},
	{"2GIS URL", func(item gjson.Result) any { return ItemURL(item) }},
}

// XLSXWriter 将每个文档的第一条记录展开为表格的一行
type XLSXWriter struct {
	path    string
	file    *excelize.File
	row     int
	verbose bool
	closed  bool
	log     logger.Logger
}

// NewXLSX 创建表格输出，文件在 Close 时保存
func NewXLSX(path string, verbose bool, l logger.Logger) (*XLSXWriter, error) {
	if l == nil {
		l = logger.NewNop()
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	f := excelize.NewFile()
	header := make([]any, len(columns))
	for i, c := range columns {
		header[i] = c.title
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}
	return &XLSXWriter{path: path, file: f, row: 1, verbose: verbose, log: l}, nil
}

// Write 追加一行，未通过校验的文档被跳过
func (w *XLSXWriter) Write(doc json.RawMessage) error {
	if !accept(w.log, doc) {
		return nil
	}
	item := gjson.GetBytes(doc, "result.items.0")
	if w.verbose {
		w.log.Info("解析记录", "n", w.row, "name", ItemName(item))
	}

	values := make([]any, len(columns))
	for i, c := range columns {
		values[i] = c.value(item)
	}
	cell, err := excelize.CoordinatesToCellName(1, w.row+1)
	if err != nil {
		return err
	}
	if err := w.file.SetSheetRow(sheetName, cell, &values); err != nil {
		return fmt.Errorf("write row %d: %w", w.row+1, err)
	}
	w.row++
	return nil
}

// Count 已写入的记录数
func (w *XLSXWriter) Count() int { return w.row - 1 }

// Close 保存并关闭表格
func (w *XLSXWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	err := w.file.SaveAs(w.path)
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	return err
}
