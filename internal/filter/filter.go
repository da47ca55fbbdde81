// Package filter 实现了站外联系方式的内容安全过滤。
// 过滤是纯函数：入参消息原文，出参替换后的展示文本与命中类别，
// 没有任何副作用，由调用方决定如何留存原文。
package filter

import (
	"regexp"
	"strings"
)

// Result 是一次过滤的输出。
type Result struct {
	// DisplayContent 是替换掉敏感片段后的展示文本
	DisplayContent string `json:"displayContent"`
	// Filtered 表示是否有任何规则命中
	Filtered bool `json:"filtered"`
	// Reason 为逗号连接的命中类别列表；无命中时为 "none"
	Reason string `json:"reason"`
}

// rule 是一条替换规则：命中 pattern 的片段整体替换为 placeholder。
type rule struct {
	category    string
	pattern     *regexp.Regexp
	placeholder string
}

// 规则按特异性从高到低排列：带应用名的规则先于裸号码规则执行，
// 避免 "whatsapp 11987654321" 被拆成两次命中。每条规则独立生效，
// 一条消息可以同时命中多个类别。
var rules = []rule{
	{
		category:    "contact app detected",
		pattern:     regexp.MustCompile(`(?i)\b(whats\s?app|telegram|signal|wechat|viber|zap)\b[\s:：,.-]*(@?[A-Za-z0-9_.+-]{2,}|\+?[\d\s().-]{8,})`),
		placeholder: "[CONTACT REMOVED]",
	},
	{
		category:    "social handle detected",
		pattern:     regexp.MustCompile(`(?i)\b(instagram|insta|facebook|snapchat|tiktok|twitter|weibo)\b[\s:：,.-]*@?[A-Za-z0-9_.]{2,}`),
		placeholder: "[SOCIAL REMOVED]",
	},
	{
		category:    "email detected",
		pattern:     regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`),
		placeholder: "[EMAIL REMOVED]",
	},
	{
		// 带/不带国家码、带/不带区号括号的电话号码，
		// 例如 +55 11 98765-4321、(11) 98765-4321、11987654321
		category:    "phone detected",
		pattern:     regexp.MustCompile(`(\+\d{1,3}[\s.-]?)?(\(\d{2,4}\)[\s.-]?|\b\d{2,4}[\s.-])?\d{4,5}[\s.-]?\d{4}\b`),
		placeholder: "[PHONE REMOVED]",
	},
}

// Apply 对一条消息执行全部过滤规则。
// 所有适用规则都会生效；未命中任何规则时原文原样返回。
func Apply(content string) Result {
	display := content
	var reasons []string

	for _, r := range rules {
		if !r.pattern.MatchString(display) {
			continue
		}
		display = r.pattern.ReplaceAllString(display, r.placeholder)
		reasons = append(reasons, r.category)
	}

	if len(reasons) == 0 {
		return Result{DisplayContent: content, Filtered: false, Reason: "none"}
	}

	return Result{
		DisplayContent: display,
		Filtered:       true,
		Reason:         strings.Join(reasons, ", "),
	}
}
