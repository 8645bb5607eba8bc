package rules

import (
	"fmt"
	"strings"
)

// ClassificationGuide renders the category cues for the classifier prompt.
// Categories are listed by priority; the text is built once per snapshot.
func (s *Snapshot) ClassificationGuide() string {
	s.guideOnce.Do(func() {
		s.guide = s.buildGuide()
	})
	return s.guide
}

func (s *Snapshot) buildGuide() string {
	var b strings.Builder
	b.WriteString("## 证据分类指南\n")
	b.WriteString("按优先级从高到低判断。只有当图片中出现某类证据的【决定性特征】时才能归入该类；")
	b.WriteString("若任何类别的决定性特征都不存在，evidence_type 必须为\"未知\"，confidence 为 0。\n\n")

	for i, name := range s.TypeNames() {
		t, _ := s.EvidenceTypeByName(name)
		fmt.Fprintf(&b, "### %d. %s\n", i+1, t.TypeName)
		if t.Description != "" {
			fmt.Fprintf(&b, "说明：%s\n", t.Description)
		}
		writeFeatures(&b, "决定性特征", t.Classification.Decisive)
		writeFeatures(&b, "重要特征", t.Classification.Important)
		writeFeatures(&b, "一般特征", t.Classification.Common)
		if len(t.Classification.ExclusionRules) > 0 {
			b.WriteString("排除规则：\n")
			for _, rule := range t.Classification.ExclusionRules {
				fmt.Fprintf(&b, "  - %s\n", rule)
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

func writeFeatures(b *strings.Builder, label string, fs FeatureSet) {
	if fs.Empty() {
		return
	}
	fmt.Fprintf(b, "%s：\n", label)
	if len(fs.Visual) > 0 {
		fmt.Fprintf(b, "  - 视觉：%s\n", strings.Join(fs.Visual, "；"))
	}
	if len(fs.Textual) > 0 {
		fmt.Fprintf(b, "  - 文字：%s\n", strings.Join(fs.Textual, "；"))
	}
}
