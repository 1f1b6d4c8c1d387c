package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"boxcard-ledger/internal/app"
	"boxcard-ledger/internal/core"

	"github.com/shopspring/decimal"
)

const usage = `Usage: ledgerctl <command> [flags] <args>

Commands:
  assign   <customer-id> <card-product-id> [--date YYYY-MM-DD]
  active   <customer-id>
  card     <card-id>
  pay      <card-id> (--amount X | --boxes N) [--method M] [--notes N] [--date YYYY-MM-DD]
  reverse  <payment-id>
  adjust   <payment-id> <new-amount> [--notes N]
  boxes    <card-id>
  history  <card-id>
  sales    <card-id> [--date YYYY-MM-DD]
  verify   <card-id>
  totals   (workers <branch-id> | branches <company-id> | company <company-id>) [--date YYYY-MM-DD]

Mutations take --actor <worker-id> or LEDGER_ACTOR_ID.`

// ErrUsage is returned for malformed command lines.
var ErrUsage = errors.New("invalid usage")

// ErrInconsistent is returned by verify when the card fails any check.
var ErrInconsistent = errors.New("card is inconsistent")

// Run executes a one-shot CLI command. args is os.Args[1:]; the first element is the
// subcommand name. Results are written to out.
func Run(ctx context.Context, svc app.ApplicationService, args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprintln(out, usage)
		return ErrUsage
	}

	cmd, rest := args[0], args[1:]
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	actor := fs.Int("actor", envInt("LEDGER_ACTOR_ID"), "worker id recorded as the actor")
	date := fs.String("date", "", "date as YYYY-MM-DD")
	amount := fs.String("amount", "", "payment amount")
	boxes := fs.Int("boxes", 0, "number of boxes to check")
	method := fs.String("method", "", "payment method")
	notes := fs.String("notes", "", "free-text notes")

	pos, err := parseInterleaved(fs, rest)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}

	switch cmd {
	case "assign":
		ids, err := intArgs(pos, 2)
		if err != nil {
			return err
		}
		res, err := svc.AssignCard(ctx, app.AssignCardRequest{CustomerID: ids[0], CardProductID: ids[1], AssignedDate: *date})
		if err != nil {
			return err
		}
		printCard(out, res.Card)

	case "active":
		ids, err := intArgs(pos, 1)
		if err != nil {
			return err
		}
		res, err := svc.GetActiveCard(ctx, ids[0])
		if err != nil {
			return err
		}
		printCard(out, res.Card)

	case "card":
		ids, err := intArgs(pos, 1)
		if err != nil {
			return err
		}
		res, err := svc.GetCard(ctx, ids[0])
		if err != nil {
			return err
		}
		printCard(out, res.Card)

	case "pay", "p":
		ids, err := intArgs(pos, 1)
		if err != nil {
			return err
		}
		req := app.ApplyPaymentRequest{
			CardID:      ids[0],
			Method:      *method,
			Notes:       *notes,
			PaymentDate: *date,
			ActorID:     *actor,
		}
		if *amount != "" {
			a, err := decimal.NewFromString(*amount)
			if err != nil {
				return fmt.Errorf("%w: invalid amount %q", ErrUsage, *amount)
			}
			req.AmountPaid = &a
		}
		if *boxes != 0 {
			req.BoxesToCheck = boxes
		}
		res, err := svc.ApplyPayment(ctx, req)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Payment %d recorded: %s, %d box(es), receipt %s\n",
			res.Payment.ID, res.Payment.AmountPaid.StringFixed(2), res.Payment.BoxesChecked, res.Payment.ReceiptNumber)
		printCard(out, res.Card)

	case "reverse":
		ids, err := intArgs(pos, 1)
		if err != nil {
			return err
		}
		res, err := svc.ReversePayment(ctx, app.ReversePaymentRequest{PaymentID: ids[0], ActorID: *actor})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Payment %d reversed.\n", ids[0])
		printCard(out, res.Card)

	case "adjust":
		if len(pos) != 2 {
			return fmt.Errorf("%w: adjust takes <payment-id> <new-amount>", ErrUsage)
		}
		ids, err := intArgs(pos[:1], 1)
		if err != nil {
			return err
		}
		newAmount, err := decimal.NewFromString(pos[1])
		if err != nil {
			return fmt.Errorf("%w: invalid amount %q", ErrUsage, pos[1])
		}
		res, err := svc.AdjustPayment(ctx, app.AdjustPaymentRequest{PaymentID: ids[0], NewAmount: newAmount, Notes: *notes, ActorID: *actor})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Payment %d adjusted to %s (%d box(es)).\n",
			res.Payment.ID, res.Payment.AmountPaid.StringFixed(2), res.Payment.BoxesChecked)
		printCard(out, res.Card)

	case "boxes":
		ids, err := intArgs(pos, 1)
		if err != nil {
			return err
		}
		res, err := svc.GetBoxStates(ctx, ids[0])
		if err != nil {
			return err
		}
		printBoxes(out, res)

	case "history", "hist":
		ids, err := intArgs(pos, 1)
		if err != nil {
			return err
		}
		res, err := svc.GetPaymentHistory(ctx, ids[0])
		if err != nil {
			return err
		}
		printHistory(out, res)

	case "sales":
		ids, err := intArgs(pos, 1)
		if err != nil {
			return err
		}
		res, err := svc.GetDailySales(ctx, ids[0], *date)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Card %d collected %s on %s\n", res.CardID, res.Total.StringFixed(2), res.Date)

	case "verify":
		ids, err := intArgs(pos, 1)
		if err != nil {
			return err
		}
		res, err := svc.VerifyCard(ctx, ids[0])
		if err != nil {
			return err
		}
		if res.Consistent {
			fmt.Fprintf(out, "Card %d is consistent.\n", res.CardID)
			return nil
		}
		for _, b := range res.Breaches {
			fmt.Fprintf(out, "  [%s] %s\n", b.Rule, b.Detail)
		}
		return fmt.Errorf("%w: card %d has %d breach(es)", ErrInconsistent, res.CardID, len(res.Breaches))

	case "totals":
		if len(pos) != 2 {
			return fmt.Errorf("%w: totals takes <workers|branches|company> <id>", ErrUsage)
		}
		ids, err := intArgs(pos[1:], 1)
		if err != nil {
			return err
		}
		var res any
		switch pos[0] {
		case "workers":
			res, err = svc.GetWorkerTotals(ctx, ids[0], *date)
		case "branches":
			res, err = svc.GetBranchTotals(ctx, ids[0], *date)
		case "company":
			res, err = svc.GetCompanyTotals(ctx, ids[0], *date)
		default:
			return fmt.Errorf("%w: unknown totals scope %q", ErrUsage, pos[0])
		}
		if err != nil {
			return err
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)

	default:
		fmt.Fprintln(out, usage)
		return fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
	}
	return nil
}

// parseInterleaved lets flags appear before or after positional arguments.
func parseInterleaved(fs *flag.FlagSet, args []string) ([]string, error) {
	var pos []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		args = fs.Args()
		if len(args) == 0 {
			return pos, nil
		}
		pos = append(pos, args[0])
		args = args[1:]
	}
}

func intArgs(pos []string, n int) ([]int, error) {
	if len(pos) != n {
		return nil, fmt.Errorf("%w: expected %d id argument(s), got %d", ErrUsage, n, len(pos))
	}
	ids := make([]int, n)
	for i, s := range pos {
		id, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not an id", ErrUsage, s)
		}
		ids[i] = id
	}
	return ids, nil
}

func envInt(key string) int {
	n, _ := strconv.Atoi(os.Getenv(key))
	return n
}

func printCard(out io.Writer, c *core.CustomerCard) {
	if c == nil {
		return
	}
	fmt.Fprintln(out, strings.Repeat("=", 62))
	fmt.Fprintf(out, "  Card %d  customer %d  product %d  [%s]\n", c.ID, c.CustomerID, c.CardProductID, c.Status)
	fmt.Fprintln(out, strings.Repeat("-", 62))
	fmt.Fprintf(out, "  Boxes    : %d / %d checked (%d remaining)\n", c.BoxesChecked, c.TotalBoxes, c.BoxesRemaining())
	fmt.Fprintf(out, "  Paid     : %s / %s (%s remaining)\n",
		c.AmountPaid.StringFixed(2), c.TotalAmount.StringFixed(2), c.AmountRemaining.StringFixed(2))
	fmt.Fprintf(out, "  Box price: %s\n", c.BoxPrice.StringFixed(4))
	fmt.Fprintln(out, strings.Repeat("=", 62))
}

func printBoxes(out io.Writer, res *app.BoxStatesResult) {
	fmt.Fprintf(out, "  %-6s %-8s %-12s %s\n", "BOX", "STATE", "DATE", "PAYMENT")
	fmt.Fprintln(out, strings.Repeat("-", 40))
	for _, b := range res.Boxes {
		state, day, payment := "open", "", ""
		if b.IsChecked {
			state = "checked"
		}
		if b.CheckedDate != nil {
			day = b.CheckedDate.Format("2006-01-02")
		}
		if b.PaymentID != nil {
			payment = strconv.Itoa(*b.PaymentID)
		}
		fmt.Fprintf(out, "  %-6d %-8s %-12s %s\n", b.BoxNumber, state, day, payment)
	}
}

func printHistory(out io.Writer, res *app.PaymentHistoryResult) {
	fmt.Fprintf(out, "  %-6s %-20s %-12s %12s %6s\n", "ID", "RECEIPT", "DATE", "AMOUNT", "BOXES")
	fmt.Fprintln(out, strings.Repeat("-", 62))
	for _, p := range res.Payments {
		fmt.Fprintf(out, "  %-6d %-20s %-12s %12s %6d\n",
			p.ID, p.ReceiptNumber, p.PaymentDate.Format("2006-01-02"), p.AmountPaid.StringFixed(2), p.BoxesChecked)
	}
}
