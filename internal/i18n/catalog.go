// Package i18n renders panel notices in the caller's language using an
// x/text message catalog. English is the fallback for every message.
package i18n

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"promptbatch/internal/domain"
)

var (
	English = language.English
	Chinese = language.Chinese
)

type entry struct {
	en string
	zh string
}

var messages = map[domain.NoticeCode]entry{
	domain.NoticeInputEmpty:           {en: "Enter at least one prompt", zh: "至少输入一个提示词"},
	domain.NoticeBatchActive:          {en: "A batch is already generating, wait for it to finish", zh: "正在批量生成中，请等待完成"},
	domain.NoticeClipboardUnavailable: {en: "Clipboard is not available", zh: "剪贴板不可用"},
	domain.NoticeClipboardWriteFailed: {en: "Failed to copy the prompt", zh: "复制提示词失败"},
	domain.NoticePromptNotFound:       {en: "Prompt not found", zh: "未找到该提示词"},
	domain.NoticeInputLocked:          {en: "Input cannot be cleared while a batch is generating", zh: "生成过程中无法清空输入"},
	domain.NoticeResultsLocked:        {en: "Results cannot be cleared while a batch is generating", zh: "生成过程中无法清空结果"},
	domain.NoticeBatchFinished:        {en: "Batch finished: %[1]d succeeded, %[2]d failed", zh: "批量生成完成：成功 %[1]d 张，失败 %[2]d 张"},
}

// argOrder maps named notice params to the positional arguments of the message.
var argOrder = map[domain.NoticeCode][]string{
	domain.NoticeBatchFinished: {"succeeded", "failed"},
}

// Catalog renders notice codes into localized text.
type Catalog struct {
	cat catalog.Catalog
}

// NewCatalog builds the notice catalog.
func NewCatalog() *Catalog {
	b := catalog.NewBuilder(catalog.Fallback(English))
	for code, msg := range messages {
		_ = b.SetString(English, string(code), msg.en)
		_ = b.SetString(Chinese, string(code), msg.zh)
	}
	return &Catalog{cat: b}
}

var defaultCatalog = NewCatalog()

// Default returns the shared catalog.
func Default() *Catalog {
	return defaultCatalog
}

// Match picks the supported language for a locale string such as "zh-CN",
// "en" or an Accept-Language header value. Tags are compared by base
// language, so every Chinese script and region (zh-TW, zh-Hant-HK) maps to
// zh. The first supported tag in preference order wins; none means English.
func Match(locale string) language.Tag {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		return English
	}
	tags, _, err := language.ParseAcceptLanguage(locale)
	if err != nil {
		return English
	}
	zh, _ := Chinese.Base()
	en, _ := English.Base()
	for _, tag := range tags {
		switch base, _ := tag.Base(); base {
		case zh:
			return Chinese
		case en:
			return English
		}
	}
	return English
}

// Render formats the message for code in tag. Unknown codes render as the code itself.
func (c *Catalog) Render(tag language.Tag, code domain.NoticeCode, params map[string]any) string {
	if _, ok := messages[code]; !ok {
		return string(code)
	}
	p := message.NewPrinter(tag, message.Catalog(c.cat))
	keys := argOrder[code]
	args := make([]any, 0, len(keys))
	for _, k := range keys {
		args = append(args, params[k])
	}
	return p.Sprintf(string(code), args...)
}

// Localize returns a copy of n with Message rendered for locale.
func (c *Catalog) Localize(n *domain.Notice, locale string) *domain.Notice {
	if n == nil {
		return nil
	}
	out := *n
	out.Message = c.Render(Match(locale), n.Code, n.Params)
	return &out
}
