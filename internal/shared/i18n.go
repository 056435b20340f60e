package shared

import "golang.org/x/text/language"

// Supported locales. Every engine error resolves to a message in both.
var (
	Arabic  = language.Arabic
	English = language.English
)

// catalog maps error kinds to their user-facing messages. Handlers render
// both languages; tests assert on the kind, never on message content.
var catalog = map[Kind]map[language.Tag]string{
	KindInvalidAmount: {
		Arabic:  "المبلغ الإجمالي يجب أن يكون أكبر من صفر",
		English: "total amount must be greater than zero",
	},
	KindInvalidInstallmentCount: {
		Arabic:  "عدد الأقساط يجب أن يكون قسطاً واحداً على الأقل",
		English: "number of installments must be at least one",
	},
	KindInvalidFrequency: {
		Arabic:  "تكرار السداد غير صالح، المسموح: أسبوعي أو نصف شهري أو شهري",
		English: "invalid payment frequency, allowed: weekly, biweekly or monthly",
	},
	KindInvalidStartDate: {
		Arabic:  "تاريخ بدء الخطة يجب أن يكون في المستقبل",
		English: "plan start date must be in the future",
	},
	KindAmountMismatch: {
		Arabic:  "مجموع مبالغ الأقساط لا يطابق المبلغ الإجمالي للخطة",
		English: "installment amounts do not sum to the plan total",
	},
	KindTermsNotAccepted: {
		Arabic:  "يجب الموافقة على شروط خطة التقسيط قبل الإنشاء",
		English: "installment plan terms must be accepted before scheduling",
	},
	KindInvoiceNotFound: {
		Arabic:  "الفاتورة غير موجودة",
		English: "invoice not found",
	},
	KindAlreadyPaid: {
		Arabic:  "الفاتورة مدفوعة بالكامل، لا يمكن إنشاء خطة تقسيط",
		English: "invoice is already fully paid, no installment plan can be created",
	},
	KindNoOutstandingBalance: {
		Arabic:  "لا يوجد رصيد مستحق على هذه الفاتورة",
		English: "invoice has no outstanding balance",
	},
	KindPlanAlreadyExists: {
		Arabic:  "توجد خطة تقسيط نشطة لهذه الفاتورة بالفعل",
		English: "invoice already has an active installment plan",
	},
	KindPlanNotFound: {
		Arabic:  "خطة التقسيط غير موجودة",
		English: "payment plan not found",
	},
	KindPlanNotActive: {
		Arabic:  "خطة التقسيط غير نشطة، لا يمكن تعديلها",
		English: "payment plan is not active and cannot be modified",
	},
	KindInstallmentNotFound: {
		Arabic:  "القسط غير موجود",
		English: "installment not found",
	},
	KindInstallmentAlreadyPaid: {
		Arabic:  "هذا القسط مدفوع بالفعل",
		English: "installment is already paid",
	},
	KindInstallmentCreationFailed: {
		Arabic:  "تعذر إنشاء أقساط الخطة، تم التراجع عن الخطة",
		English: "failed to create plan installments, plan was rolled back",
	},
	KindStorageFailure: {
		Arabic:  "حدث خطأ أثناء حفظ البيانات",
		English: "a storage error occurred",
	},
	KindChargeFailure: {
		Arabic:  "فشلت محاولة الخصم التلقائي",
		English: "automatic charge attempt failed",
	},
}

// Message resolves the catalog entry for a kind and locale, falling back to
// English when the locale is missing.
func Message(kind Kind, tag language.Tag) string {
	msgs, ok := catalog[kind]
	if !ok {
		return string(kind)
	}
	if msg, ok := msgs[tag]; ok {
		return msg
	}
	return msgs[English]
}
