package rules

import (
	"casefile-backend/models"
)

// Category names shared by routing, OCR and party back-propagation
const (
	CategoryIDCard             = "身份证"
	CategoryHouseholdRegister  = "户籍档案"
	CategoryCompanyLicense     = "公司营业执照"
	CategoryIndividualLicense  = "个体工商户营业执照"
	CategoryCompanyRegistry    = "公司全国企业信用信息公示系统截图"
	CategoryIndividualRegistry = "个体工商户全国企业信用信息公示系统截图"
	CategoryVATInvoice         = "增值税发票"
	CategoryChatRecord         = "微信聊天记录"
)

// Route is the extraction backend an artifact is sent to
type Route string

const (
	RouteOCR         Route = "ocr"
	RouteLLM         Route = "llm"
	RouteAssociation Route = "association"
)

var ocrCategories = map[string]bool{
	CategoryIDCard:             true,
	CategoryCompanyLicense:     true,
	CategoryIndividualLicense:  true,
	CategoryCompanyRegistry:    true,
	CategoryIndividualRegistry: true,
	CategoryVATInvoice:         true,
}

// RouteFor picks the extraction backend for a category
func RouteFor(category string) Route {
	switch {
	case category == CategoryChatRecord:
		return RouteAssociation
	case ocrCategories[category]:
		return RouteOCR
	default:
		return RouteLLM
	}
}

// defaultTypeAliases maps a canonical category to the names that denote it
var defaultTypeAliases = map[string][]string{
	CategoryIDCard:             {"居民身份证", "身份证正面", "身份证反面"},
	CategoryHouseholdRegister:  {"户口本", "户口簿", "中华人民共和国居民户籍档案", "居民户籍档案"},
	CategoryCompanyLicense:     {"营业执照", "企业营业执照"},
	CategoryIndividualLicense:  {"个体营业执照"},
	CategoryCompanyRegistry:    {"公司全国企业公示系统截图", "企业信用信息公示截图"},
	CategoryIndividualRegistry: {"个体工商户全国企业公示系统截图"},
	CategoryVATInvoice:         {"发票", "增值税专用发票", "增值税普通发票"},
	CategoryChatRecord:         {"聊天记录", "微信聊天截图"},
	"转账记录":                     {"银行转账记录", "微信转账记录", "支付宝转账记录", "转账凭证"},
	"借条":                       {"借据"},
}

// defaultPartyFieldMaps maps slot names to party fields per category
var defaultPartyFieldMaps = map[string]map[string]string{
	CategoryIDCard: {
		"姓名":     models.PartyFieldName,
		"公民身份号码": models.PartyFieldIDCard,
		"住址":     models.PartyFieldAddress,
	},
	CategoryCompanyLicense: {
		"公司名称":     models.PartyFieldCompanyName,
		"统一社会信用代码": models.PartyFieldCompanyCode,
		"法定代表人":    models.PartyFieldName,
		"住所":       models.PartyFieldCompanyAddress,
	},
	CategoryIndividualLicense: {
		"名称":       models.PartyFieldCompanyName,
		"统一社会信用代码": models.PartyFieldCompanyCode,
		"经营者":      models.PartyFieldName,
		"经营场所":     models.PartyFieldCompanyAddress,
	},
	CategoryCompanyRegistry: {
		"企业名称":     models.PartyFieldCompanyName,
		"统一社会信用代码": models.PartyFieldCompanyCode,
		"法定代表人":    models.PartyFieldName,
		"住所":       models.PartyFieldCompanyAddress,
	},
	CategoryIndividualRegistry: {
		"企业名称":     models.PartyFieldCompanyName,
		"统一社会信用代码": models.PartyFieldCompanyCode,
		"经营者":      models.PartyFieldName,
		"经营场所":     models.PartyFieldCompanyAddress,
	},
}

// aliasIndex resolves names to their canonical category
type aliasIndex map[string]string

func buildAliasIndex(overrides map[string][]string) aliasIndex {
	idx := make(aliasIndex)
	add := func(table map[string][]string) {
		for canonical, aliases := range table {
			idx[canonical] = canonical
			for _, a := range aliases {
				idx[a] = canonical
			}
		}
	}
	add(defaultTypeAliases)
	add(overrides)
	return idx
}

func (a aliasIndex) canonical(name string) string {
	if c, ok := a[name]; ok {
		return c
	}
	return name
}

func mergePartyFieldMaps(overrides map[string]map[string]string) map[string]map[string]string {
	out := make(map[string]map[string]string, len(defaultPartyFieldMaps)+len(overrides))
	for k, v := range defaultPartyFieldMaps {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}
