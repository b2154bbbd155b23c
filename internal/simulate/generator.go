package simulate

import (
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"

	"github.com/okian/autodist/internal/domain/model"
)

// weightedTypes skews the mix towards the events a shop sees most.
var weightedTypes = []struct {
	t      model.EventType
	weight int
}{
	{model.EventPurchaseConfirmed, 2},
	{model.EventInspectionComplete, 4},
	{model.EventInvoiceCompleted, 4},
	{model.EventDeviceSold, 3},
	{model.EventWarrantyClaim, 1},
	{model.EventStockLow, 1},
	{model.EventDailyTasks, 1},
}

// generator produces reproducible synthetic events.
type generator struct {
	rnd   *rand.Rand
	seed  uint64
	total int
}

func newGenerator(seed uint64) *generator {
	total := 0
	for _, w := range weightedTypes {
		total += w.weight
	}
	return &generator{rnd: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), seed: seed, total: total}
}

// Generate returns n events. A share of them, dup, repeats an earlier event
// id to exercise ingestion dedupe.
func (g *generator) Generate(n int, dup float64) []Event {
	out := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		if i > 0 && g.rnd.Float64() < dup {
			out = append(out, out[g.rnd.IntN(len(out))])
			continue
		}
		out = append(out, g.event(i))
	}
	return out
}

func (g *generator) pick() model.EventType {
	n := g.rnd.IntN(g.total)
	for _, w := range weightedTypes {
		if n < w.weight {
			return w.t
		}
		n -= w.weight
	}
	return model.EventDailyTasks
}

func (g *generator) event(i int) Event {
	t := g.pick()
	id := uuid.NewSHA1(uuid.NameSpaceOID, fmt.Appendf(nil, "autodist/%d/%d", g.seed, i))
	ev := Event{EventID: id.String(), Type: string(t)}
	invoice := fmt.Sprintf("INV-%05d", i)
	device := fmt.Sprintf("DEV-%05d", g.rnd.IntN(100000))

	switch t {
	case model.EventPurchaseConfirmed:
		items := make([]any, 1+g.rnd.IntN(2))
		for j := range items {
			items[j] = map[string]any{
				"device_id": fmt.Sprintf("%s-%d", device, j),
				"quantity":  1 + g.rnd.IntN(2),
			}
		}
		ev.Payload = model.Payload{"invoice_id": invoice, "items": items}
	case model.EventInspectionComplete:
		result := "pass"
		if g.rnd.IntN(10) == 0 {
			result = "fail"
		}
		ev.Payload = model.Payload{"device_id": device, "result": result}
	case model.EventInvoiceCompleted:
		payment := "card"
		if g.rnd.IntN(4) == 0 {
			payment = "cod"
		}
		ev.Payload = model.Payload{"invoice_id": invoice, "payment_type": payment}
	case model.EventDeviceSold:
		ev.Payload = model.Payload{"invoice_id": invoice, "device_id": device}
	case model.EventWarrantyClaim:
		ev.Payload = model.Payload{"claim_id": fmt.Sprintf("WC-%05d", i), "device_id": device}
	case model.EventStockLow:
		ev.Payload = model.Payload{"product_id": fmt.Sprintf("P-%03d", g.rnd.IntN(50)), "quantity": g.rnd.IntN(3)}
	default:
		kinds := []string{"cleaning", "inventory", "all"}
		ev.Payload = model.Payload{"kind": kinds[g.rnd.IntN(len(kinds))]}
	}
	return ev
}
