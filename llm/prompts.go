package llm

import (
	"fmt"
	"strings"

	"casefile-backend/rules"
)

func classifyPrompt(guide string, urls []string) string {
	var b strings.Builder
	b.WriteString("你是一名民事诉讼证据分类专家。请根据下面的分类指南，对随后提供的每一张图片判断其证据类型。\n\n")
	b.WriteString(guide)
	b.WriteString("\n\n## 输出要求\n")
	b.WriteString("- 对每张图片输出一条结果，image_url 必须与图片前标注的 URL 完全一致。\n")
	b.WriteString("- evidence_type 必须是指南中列出的类型名称之一；缺少决定性特征时必须输出 \"未知\"，confidence 为 0。\n")
	b.WriteString("- confidence 取值 0 到 1；reasoning 简要说明判断依据。\n\n")
	b.WriteString("只输出如下 JSON：\n")
	b.WriteString(`{"results":[{"image_url":"...","evidence_type":"...","confidence":0.95,"reasoning":"..."}]}`)
	b.WriteString("\n\n共 ")
	b.WriteString(fmt.Sprint(len(urls)))
	b.WriteString(" 张图片。\n")
	return b.String()
}

func writeSlotList(b *strings.Builder, slots []rules.ExtractionSlot) {
	for _, s := range slots {
		fmt.Fprintf(b, "- %s（%s", s.SlotName, s.ValueType())
		if s.SlotRequired {
			b.WriteString("，必填")
		}
		b.WriteString("）")
		if s.SlotDesc != "" {
			b.WriteString("：")
			b.WriteString(s.SlotDesc)
		}
		b.WriteString("\n")
	}
}

func extractPrompt(targets []ExtractionTarget, slots map[string][]rules.ExtractionSlot) string {
	var b strings.Builder
	b.WriteString("你是一名证据信息提取专家。请从每张图片中提取其证据类型规定的字段。\n\n")
	b.WriteString("## 提取规则\n")
	b.WriteString("- 只提取下面列出的字段，不得新增字段。\n")
	b.WriteString("- 图片中没有的信息，slot_value 输出 \"未知\"，并在 reasoning 中说明原因。\n")
	b.WriteString("- 金额等数字字段只输出数字，不带单位、不带千分位、不保留末尾的 0（例如 1000.50 输出 1000.5）。\n")
	b.WriteString("- 日期统一为 YYYY-MM-DD。\n\n")
	b.WriteString("## 待提取图片\n")
	for i, t := range targets {
		fmt.Fprintf(&b, "\n### 图片%d：%s\nURL: %s\n字段：\n", i+1, t.Category, t.URL)
		writeSlotList(&b, slots[t.Category])
	}
	b.WriteString("\n只输出如下 JSON：\n")
	b.WriteString(`{"results":[{"image_url":"...","evidence_type":"...","slots":[{"slot_name":"...","slot_value":"...","confidence":0.9,"reasoning":"..."}]}]}`)
	b.WriteString("\n")
	return b.String()
}

func associationPrompt(slots []rules.ExtractionSlot, count int) string {
	var b strings.Builder
	b.WriteString("你是一名微信聊天记录分析专家。随后提供的 ")
	b.WriteString(fmt.Sprint(count))
	b.WriteString(" 张图片都是微信聊天截图，可能来自多个不同的聊天对象。请按以下步骤处理：\n\n")
	b.WriteString("1. 分组：识别每张截图顶部标题栏显示的联系人昵称（备注名），昵称相同的截图归为一组，group_name 即该昵称。\n")
	b.WriteString("2. 排序：组内截图按时间先后排序。依据依次为：消息时间戳；对话连续性（上一张最后一条消息的发送方与下一张第一条消息的发送方是否衔接）；画面连续性（相同的背景、被截断的气泡边缘）。\n")
	b.WriteString("3. 提取：对每一组，提取下列字段，并在 reference_urls 中列出该字段所依据的截图 URL。\n\n")
	b.WriteString("## 字段\n")
	writeSlotList(&b, slots)
	b.WriteString("\n## 输出要求\n")
	b.WriteString("- image_urls 按排好的顺序列出该组全部截图的 URL，URL 必须与图片前标注的完全一致。\n")
	b.WriteString("- 没有的信息 slot_value 输出 \"未知\"。\n")
	b.WriteString("- 数字字段不带单位、不保留末尾的 0（例如 5000.00 输出 5000）。\n\n")
	b.WriteString("只输出如下 JSON：\n")
	b.WriteString(`{"groups":[{"group_name":"...","image_urls":["..."],"reasoning":"...","slots":[{"slot_name":"...","slot_value":"...","confidence":0.9,"reasoning":"...","reference_urls":["..."]}]}]}`)
	b.WriteString("\n")
	return b.String()
}
