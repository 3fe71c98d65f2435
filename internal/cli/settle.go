package cli

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"dividi/internal/core"
	"dividi/internal/groups"
)

// SettleConfig configures the offline settlement report.
type SettleConfig struct {
	// Path is the record file; "-" or empty reads stdin.
	Path    string
	GroupID string
	JSON    bool
}

// ParseSettleConfig parses the settle command flags.
func ParseSettleConfig(fs *flag.FlagSet, args []string) (SettleConfig, error) {
	var cfg SettleConfig
	fs.StringVar(&cfg.GroupID, "group", "offline", "group id to report under")
	fs.BoolVar(&cfg.JSON, "json", false, "print the report as JSON")
	if err := fs.Parse(args); err != nil {
		return SettleConfig{}, err
	}
	switch fs.NArg() {
	case 0:
		cfg.Path = "-"
	case 1:
		cfg.Path = fs.Arg(0)
	default:
		return SettleConfig{}, errors.New("expected at most one record file")
	}
	return cfg, nil
}

// RunSettle reads a group record and writes its balances and settlements.
func RunSettle(cfg SettleConfig, stdin io.Reader, out io.Writer) error {
	data, err := readRecord(cfg.Path, stdin)
	if err != nil {
		return err
	}
	g, err := groups.Decode(cfg.GroupID, data)
	if err != nil {
		return err
	}
	sum, err := core.Summarize(g)
	if err != nil {
		return fmt.Errorf("summarize: %w", err)
	}
	if cfg.JSON {
		return writeSettleJSON(out, sum)
	}
	return writeSettleText(out, sum)
}

func readRecord(path string, stdin io.Reader) ([]byte, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read record: %w", err)
	}
	return data, nil
}

func writeSettleText(out io.Writer, sum core.Summary) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "Total expenses\t%s\t\n\n", core.FormatAmount(sum.TotalExpenses))

	fmt.Fprintln(tw, "Balances")
	for _, b := range sum.Balances {
		fmt.Fprintf(tw, "%s\t%s\t\n", b.Name, core.FormatAmount(b.Amount))
	}

	fmt.Fprintln(tw, "\nSettlements")
	if len(sum.Settlements) == 0 {
		fmt.Fprintln(tw, "All settled up")
	}
	for _, s := range sum.Settlements {
		fmt.Fprintf(tw, "%s -> %s\t%s\t\n", s.From, s.To, core.FormatAmount(s.Amount))
	}
	return tw.Flush()
}

type settleReport struct {
	TotalExpenses string          `json:"total_expenses"`
	Balances      []settleBalance `json:"balances"`
	Settlements   []settleLine    `json:"settlements"`
}

// settleBalance keeps roster order, which a JSON object would lose.
type settleBalance struct {
	Name   string `json:"name"`
	Amount string `json:"amount"`
}

type settleLine struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

func writeSettleJSON(out io.Writer, sum core.Summary) error {
	r := settleReport{
		TotalExpenses: core.FormatAmount(sum.TotalExpenses),
		Balances:      make([]settleBalance, 0, len(sum.Balances)),
		Settlements:   make([]settleLine, 0, len(sum.Settlements)),
	}
	for _, b := range sum.Balances {
		r.Balances = append(r.Balances, settleBalance{Name: b.Name, Amount: core.FormatAmount(b.Amount)})
	}
	for _, s := range sum.Settlements {
		r.Settlements = append(r.Settlements, settleLine{From: s.From, To: s.To, Amount: core.FormatAmount(s.Amount)})
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
