package ocr

import (
	"casefile-backend/normalize"
	"casefile-backend/rules"
)

// Service types of the OCR backend
const (
	ServiceIDCard             = "idcard"
	ServiceBusinessLicense    = "business_license"
	ServiceIndividualLicense  = "individual_license"
	ServiceEnterpriseRegistry = "enterprise_registry"
	ServiceIndividualRegistry = "individual_registry"
	ServiceVATInvoice         = "vat_invoice"
)

var serviceByCategory = map[string]string{
	rules.CategoryIDCard:             ServiceIDCard,
	rules.CategoryCompanyLicense:     ServiceBusinessLicense,
	rules.CategoryIndividualLicense:  ServiceIndividualLicense,
	rules.CategoryCompanyRegistry:    ServiceEnterpriseRegistry,
	rules.CategoryIndividualRegistry: ServiceIndividualRegistry,
	rules.CategoryVATInvoice:         ServiceVATInvoice,
}

// ServiceFor returns the OCR service type for a category
func ServiceFor(category string) (string, bool) {
	s, ok := serviceByCategory[category]
	return s, ok
}

type fieldSpec struct {
	slot      string
	valueType string
	clean     func(string) string
}

func text(slot string) fieldSpec {
	return fieldSpec{slot: slot, valueType: "string", clean: normalize.Text}
}

func compact(slot string) fieldSpec {
	return fieldSpec{slot: slot, valueType: "string", clean: normalize.NoSpaces}
}

func date(slot string) fieldSpec {
	return fieldSpec{slot: slot, valueType: "date", clean: normalize.NoSpaces}
}

var (
	creditCode  = fieldSpec{slot: "统一社会信用代码", valueType: "string", clean: normalize.CreditCode}
	companyType = fieldSpec{slot: "类型", valueType: "string", clean: normalize.CompanyType}
)

// fieldTables maps raw region types to slots, per service type
var fieldTables = map[string]map[string]fieldSpec{
	ServiceIDCard: {
		"name":        text("姓名"),
		"sex":         text("性别"),
		"nationality": text("民族"),
		"birth":       date("出生"),
		"address":     compact("住址"),
		"id_number":   {slot: "公民身份号码", valueType: "string", clean: normalize.CreditCode},
	},
	ServiceBusinessLicense: {
		"name":               text("公司名称"),
		"credit_code":        creditCode,
		"type":               companyType,
		"legal_person":       text("法定代表人"),
		"address":            compact("住所"),
		"registered_capital": compact("注册资本"),
		"found_date":         date("成立日期"),
	},
	ServiceIndividualLicense: {
		"name":          text("名称"),
		"credit_code":   creditCode,
		"type":          companyType,
		"operator":      text("经营者"),
		"address":       compact("经营场所"),
		"register_date": date("注册日期"),
	},
	ServiceEnterpriseRegistry: {
		"name":         text("企业名称"),
		"credit_code":  creditCode,
		"type":         companyType,
		"legal_person": text("法定代表人"),
		"address":      compact("住所"),
		"status":       text("登记状态"),
	},
	ServiceIndividualRegistry: {
		"name":        text("企业名称"),
		"credit_code": creditCode,
		"operator":    text("经营者"),
		"address":     compact("经营场所"),
	},
	ServiceVATInvoice: {
		"invoice_number": compact("发票号码"),
		"invoice_date":   date("开票日期"),
		"buyer_name":     text("购买方名称"),
		"seller_name":    text("销售方名称"),
		"total_amount":   {slot: "价税合计", valueType: "number", clean: normalize.Number},
	},
}
