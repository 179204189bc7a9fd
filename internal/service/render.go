package service

import (
	"fmt"
	"html"
	"strings"

	"github.com/felixhub/workshop/internal/domain/order"
)

const dateLayout = "02.01.2006 15:04"

// Message text is sent with parse_mode HTML, so every user-supplied value
// goes through html.EscapeString.

func renderPartsList(parts []string) string {
	if len(parts) == 0 {
		return "  • —"
	}
	lines := make([]string, 0, len(parts))
	for _, p := range parts {
		lines = append(lines, "  • "+html.EscapeString(p))
	}
	return strings.Join(lines, "\n")
}

func carIdentifier(o *order.Order) string {
	switch {
	case o.CarNumber != "":
		return o.CarNumber
	case o.VIN != "":
		return o.VIN
	default:
		return "—"
	}
}

func withLink(text, link string) string {
	if link == "" {
		return text
	}
	return fmt.Sprintf("%s\n\n<a href=\"%s\">Открыть заказ</a>", text, html.EscapeString(link))
}

func renderAdminNewOrder(o *order.Order, link string) string {
	text := fmt.Sprintf(
		"🆕 <b>Новый заказ №%d</b>\n\n"+
			"👤 Механик: %s\n"+
			"📂 Категория: %s\n"+
			"🚗 Авто: %s\n"+
			"🔧 Запчасти:\n%s\n\n"+
			"🕒 %s",
		o.ID,
		html.EscapeString(o.MechanicName),
		html.EscapeString(o.Category),
		html.EscapeString(carIdentifier(o)),
		renderPartsList(o.SelectedParts),
		o.CreatedAt.Format(dateLayout),
	)
	return withLink(text, link)
}

func renderOrderReady(o *order.Order) string {
	return fmt.Sprintf(
		"✅ <b>Заказ №%d готов!</b>\n\n"+
			"Запчасти:\n%s\n\n"+
			"🚗 VIN: %s\n"+
			"📅 Дата заказа: %s\n\n"+
			"Можно забирать на складе.",
		o.ID,
		renderPartsList(o.SelectedParts),
		html.EscapeString(o.VIN),
		o.CreatedAt.Format(dateLayout),
	)
}

func renderOrderIssued(o *order.Order, old order.Status) string {
	return fmt.Sprintf(
		"📦 <b>Статус заказа №%d изменён</b>\n\n"+
			"Было: <i>%s</i>\n"+
			"Стало: <b>%s</b>\n\n"+
			"🚗 VIN: %s",
		o.ID,
		old.Label(),
		order.StatusIssued.Label(),
		html.EscapeString(o.VIN),
	)
}

func renderAdminStatusChanged(o *order.Order, old, next order.Status, link string) string {
	text := fmt.Sprintf(
		"🔄 <b>Заказ №%d</b>\n\n"+
			"Статус: <i>%s</i> → <b>%s</b>\n"+
			"👤 Механик: %s",
		o.ID,
		old.Label(),
		next.Label(),
		html.EscapeString(o.MechanicName),
	)
	return withLink(text, link)
}

func renderMechanicStatusChanged(o *order.Order, old, next order.WorkStatus, link string) string {
	text := fmt.Sprintf(
		"🛠 <b>Заказ №%d: работа механика</b>\n\n"+
			"Было: <i>%s</i>\n"+
			"Стало: <b>%s</b>\n"+
			"👤 Механик: %s\n"+
			"🚗 Авто: %s",
		o.ID,
		old.Label(),
		next.Label(),
		html.EscapeString(o.MechanicName),
		html.EscapeString(carIdentifier(o)),
	)
	return withLink(text, link)
}

func renderSystemAlert(a Alert) string {
	icon := "⚠️"
	if a.Severity == SeverityCritical {
		icon = "🚨"
	}
	return fmt.Sprintf(
		"%s <b>%s</b>\n\n%s\n\nТип: <code>%s</code>",
		icon,
		strings.ToUpper(string(a.Severity)),
		html.EscapeString(a.Message),
		html.EscapeString(a.Type),
	)
}

func renderHelp() string {
	return "👋 <b>Felix Hub</b>\n\n" +
		"Я присылаю уведомления о ваших заказах запчастей.\n\n" +
		"/myorders — последние заказы\n" +
		"/help — эта справка"
}

func renderUnknownCommand() string {
	return "Не понимаю команду. Отправьте /help, чтобы увидеть список команд."
}

func renderOrderList(orders []*order.Order) string {
	if len(orders) == 0 {
		return "У вас пока нет заказов."
	}
	var b strings.Builder
	b.WriteString("📋 <b>Ваши последние заказы</b>\n")
	for _, o := range orders {
		fmt.Fprintf(&b, "\n№%d · %s · %s\n%s",
			o.ID,
			o.Status.Label(),
			o.CreatedAt.Format(dateLayout),
			renderPartsList(o.SelectedParts),
		)
	}
	return b.String()
}
