package notification

import (
	"net/url"
	"strings"
)

// normalizePhone 去掉电话号码里的空格、横线与前导 +（wa.me 要求纯数字）
func normalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// WhatsAppLink 构造预填消息的 WhatsApp 深链
func WhatsAppLink(phone, text string) string {
	return "https://wa.me/" + normalizePhone(phone) + "?text=" + url.QueryEscape(text)
}

// SMSComposeLink 构造预填消息的短信撰写深链
func SMSComposeLink(phone, text string) string {
	return "sms:" + phone + "?body=" + url.QueryEscape(text)
}

// TelLink 构造拨号深链
func TelLink(number string) string {
	return "tel:" + number
}
