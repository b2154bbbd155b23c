// Package generator turns business events into task definitions.
//
// Generation is pure: the same event always yields the same definitions in
// the same order, and nothing is read from or written to any store.
package generator

import (
	"fmt"
	"strconv"

	"github.com/okian/autodist/internal/domain/model"
)

// Estimates in minutes.
const (
	inspectionMinutes      = 15
	preparationMinutes     = 20
	stickerMinutesPerUnit  = 3
	stickerMaxMinutes      = 60
	packagingMinutes       = 15
	invoiceDeliveryMinutes = 30
	soldDeliveryMinutes    = 20
	warrantyInspectMinutes = 25
	warrantySendMinutes    = 30
	stockOrderMinutes      = 45
	cleaningMinutes        = 60
	inventoryMinutes       = 90
)

// maxDevicesPerEvent caps the devices one purchase expands into. Larger
// quantities are clamped.
const maxDevicesPerEvent = 500

// Generate returns the task definitions for ev. Unknown event types yield nil.
func Generate(ev model.Event) []model.TaskDefinition {
	p := ev.Payload
	if p == nil {
		p = model.Payload{}
	}
	switch ev.Type {
	case model.EventPurchaseConfirmed:
		return purchaseConfirmed(p)
	case model.EventInspectionComplete:
		return inspectionComplete(p)
	case model.EventInvoiceCompleted:
		return invoiceCompleted(p)
	case model.EventDeviceSold:
		return deviceSold(p)
	case model.EventWarrantyClaim:
		return warrantyClaim(p)
	case model.EventStockLow:
		return stockLow(p)
	case model.EventDailyTasks:
		return dailyTasks(p)
	}
	return nil
}

func newDef(kind model.TaskKind, title, localized string, priority model.Priority, minutes int, ref model.SourceReference) model.TaskDefinition {
	return model.TaskDefinition{
		Kind:             kind,
		Title:            title,
		TitleLocalized:   localized,
		Priority:         priority,
		RequiredSkill:    kind.Skill(),
		EstimatedMinutes: minutes,
		SourceReference:  ref,
	}
}

func ref(et model.EventType, kv ...string) model.SourceReference {
	attrs := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] == "" {
			continue
		}
		attrs[kv[i]] = kv[i+1]
	}
	return model.SourceReference{EventType: et, Attrs: attrs}
}

func purchaseConfirmed(p model.Payload) []model.TaskDefinition {
	invoiceID := stringField(p, "invoice_id", "invoiceId")
	items := itemsField(p)

	total := 0
	for _, it := range items {
		total = min(maxDevicesPerEvent, total+quantity(it))
	}

	defs := make([]model.TaskDefinition, 0, 2*total+1)
	for i := 0; i < total; i++ {
		deviceID := ""
		if len(items) > 0 {
			item := items[0]
			if i < len(items) {
				item = items[i]
			}
			deviceID = stringField(item, "device_id", "serial_number")
		}
		if deviceID == "" {
			deviceID = fmt.Sprintf("item-%d", i)
		}
		defs = append(defs, newDef(model.KindInspection,
			"Inspect device (batch)", "فحص جهاز - دفعة شراء",
			model.PriorityNormal, inspectionMinutes,
			ref(model.EventPurchaseConfirmed,
				"invoice_id", invoiceID,
				"device_index", strconv.Itoa(i),
				"device_id", deviceID)))
	}
	for i := 0; i < total; i++ {
		defs = append(defs, newDef(model.KindPreparation,
			"Prepare device after inspection", "تجهيز جهاز بعد الفحص",
			model.PriorityNormal, preparationMinutes,
			ref(model.EventPurchaseConfirmed,
				"invoice_id", invoiceID,
				"device_index", strconv.Itoa(i),
				"after_inspection", "true")))
	}
	if total > 0 {
		defs = append(defs, newDef(model.KindSticker,
			fmt.Sprintf("Print and apply serial stickers (batch of %d)", total),
			fmt.Sprintf("طباعة ولصق ستيكرات السيريال - %d جهاز", total),
			model.PriorityLow, min(stickerMaxMinutes, stickerMinutesPerUnit*total),
			ref(model.EventPurchaseConfirmed,
				"invoice_id", invoiceID,
				"count", strconv.Itoa(total))))
	}
	return defs
}

func inspectionComplete(p model.Payload) []model.TaskDefinition {
	result := stringField(p, "result", "inspection_result")
	if result == "fail" || result == "return" {
		return nil
	}
	return []model.TaskDefinition{
		newDef(model.KindPreparation,
			"Prepare device for sale", "تجهيز الجهاز للبيع",
			model.PriorityNormal, preparationMinutes,
			ref(model.EventInspectionComplete, "device_id", stringField(p, "device_id", "deviceId"))),
	}
}

func invoiceCompleted(p model.Payload) []model.TaskDefinition {
	invoiceID := stringField(p, "invoice_id", "invoiceId")
	cod := numberField(p, "cod_amount") > 0 || stringField(p, "payment_type") == "cod"

	priority := model.PriorityNormal
	if cod {
		priority = model.PriorityHigh
	}
	delivery := newDef(model.KindDelivery,
		"Hand over to delivery company", "تسليم لشركة التوصيل",
		priority, invoiceDeliveryMinutes,
		ref(model.EventInvoiceCompleted, "invoice_id", invoiceID, "cod", strconv.FormatBool(cod)))
	delivery.RequiresApproval = cod

	return []model.TaskDefinition{
		newDef(model.KindPackaging,
			"Package order for delivery", "تغليف الطلب للتوصيل",
			model.PriorityNormal, packagingMinutes,
			ref(model.EventInvoiceCompleted, "invoice_id", invoiceID)),
		delivery,
	}
}

func deviceSold(p model.Payload) []model.TaskDefinition {
	invoiceID := stringField(p, "invoice_id", "invoiceId")
	return []model.TaskDefinition{
		newDef(model.KindPackaging,
			"Photo and package device", "تصوير وتغليف الجهاز",
			model.PriorityNormal, packagingMinutes,
			ref(model.EventDeviceSold, "invoice_id", invoiceID)),
		newDef(model.KindDelivery,
			"Hand over to delivery company", "تسليم لشركة التوصيل",
			model.PriorityNormal, soldDeliveryMinutes,
			ref(model.EventDeviceSold, "invoice_id", invoiceID)),
	}
}

func warrantyClaim(p model.Payload) []model.TaskDefinition {
	claimID := stringField(p, "claim_id", "warranty_claim_id")
	return []model.TaskDefinition{
		newDef(model.KindWarrantyInspect,
			"Inspect warranty claim device", "فحص جهاز مطالبة الضمان",
			model.PriorityHigh, warrantyInspectMinutes,
			ref(model.EventWarrantyClaim, "claim_id", claimID)),
		newDef(model.KindWarrantySend,
			"Send device (warranty)", "إرسال الجهاز - ضمان",
			model.PriorityNormal, warrantySendMinutes,
			ref(model.EventWarrantyClaim, "claim_id", claimID)),
	}
}

func stockLow(p model.Payload) []model.TaskDefinition {
	r := model.SourceReference{EventType: model.EventStockLow, Attrs: scalars(p)}
	if id := stringField(p, "product_id", "productId"); id != "" {
		r.Attrs["product_id"] = id
	}
	def := newDef(model.KindStockOrder,
		"Create purchase order (low stock)", "إنشاء أمر شراء - مخزون منخفض",
		model.PriorityHigh, stockOrderMinutes, r)
	def.RequiresApproval = true
	return []model.TaskDefinition{def}
}

func dailyTasks(p model.Payload) []model.TaskDefinition {
	kind := stringField(p, "kind")
	if kind == "" {
		kind = "cleaning"
	}
	date := stringField(p, "date")

	var defs []model.TaskDefinition
	if kind == "cleaning" || kind == "all" {
		defs = append(defs, newDef(model.KindCleaning,
			"Daily cleaning task", "مهمة تنظيف يومية",
			model.PriorityLow, cleaningMinutes,
			ref(model.EventDailyTasks, "kind", "cleaning", "date", date)))
	}
	if kind == "inventory" || kind == "all" {
		defs = append(defs, newDef(model.KindPreparation,
			"Daily inventory check", "جرد يومي",
			model.PriorityNormal, inventoryMinutes,
			ref(model.EventDailyTasks, "kind", "inventory", "date", date)))
	}
	if len(defs) > 0 {
		return defs
	}
	return []model.TaskDefinition{
		newDef(model.KindCleaning,
			"Daily task", "مهمة يومية",
			model.PriorityLow, cleaningMinutes,
			model.SourceReference{EventType: model.EventDailyTasks, Attrs: scalars(p)}),
	}
}
