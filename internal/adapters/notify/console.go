package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

// Console implementa ports.Notifier escribiendo resúmenes de texto.
// Es fire-and-forget: el motor ignora cualquier error de aquí.
type Console struct {
	out io.Writer
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

// NotifyStart anuncia el arranque del motor.
func (c *Console) NotifyStart(_ context.Context, targetWallet string, budget float64, dryRun bool) error {
	mode := "LIVE"
	if dryRun {
		mode = "DRY-RUN"
	}
	_, err := fmt.Fprintf(c.out, "[%s] copybot started — mode=%s target=%s budget=$%.2f/window\n",
		time.Now().Format("15:04:05"), mode, shortWallet(targetWallet), budget)
	return err
}

// NotifyCopy imprime una línea por ventana copiada, hedge o direccional.
func (c *Console) NotifyCopy(_ context.Context, copy domain.WindowCopy) error {
	now := time.Now().Format("15:04:05")
	kind := "COPY"
	if copy.IsHedge {
		kind = "HEDGE"
	}

	title := copy.Title
	if title == "" {
		title = copy.MarketKey
	}
	if len(title) > 40 {
		title = title[:37] + "..."
	}

	fmt.Fprintf(c.out, "[%s] %s %s", now, kind, title)
	for _, leg := range copy.Legs {
		if leg.Result.Success {
			fmt.Fprintf(c.out, " | %s $%.2f @%.2f ✓", leg.Allocation.Outcome, leg.Allocation.Amount, leg.Allocation.Price)
		} else {
			fmt.Fprintf(c.out, " | %s $%.2f ✗ (%s)", leg.Allocation.Outcome, leg.Allocation.Amount, leg.Result.Error)
		}
	}
	_, err := fmt.Fprintln(c.out)
	return err
}

// NotifyStop imprime el rollup final en tabla.
func (c *Console) NotifyStop(_ context.Context, summary domain.ROISummary, copied, failed, skipped int) error {
	fmt.Fprintf(c.out, "\n[%s] copybot stopped — copied:%d failed:%d skipped:%d\n",
		time.Now().Format("15:04:05"), copied, failed, skipped)
	PrintSummary(c.out, summary)
	return nil
}

// PrintSummary imprime el rollup de ROI como tabla.
func PrintSummary(out io.Writer, s domain.ROISummary) {
	table := tablewriter.NewWriter(out)
	table.Header("Resolved", "Won", "Lost", "Win rate", "Spent", "Payout", "Profit", "ROI")
	table.Append(
		fmt.Sprintf("%d", s.Resolved),
		fmt.Sprintf("%d", s.Won),
		fmt.Sprintf("%d", s.Lost),
		fmt.Sprintf("%.1f%%", s.WinRate*100),
		fmt.Sprintf("$%.2f", s.TotalSpent),
		fmt.Sprintf("$%.2f", s.TotalPayout),
		fmt.Sprintf("$%.2f", s.Profit),
		fmt.Sprintf("%.1f%%", s.ROI*100),
	)
	table.Render()
}

func shortWallet(w string) string {
	if len(w) <= 10 {
		return w
	}
	return w[:6] + "..." + w[len(w)-4:]
}
