// Command bilancio-audit recomputes every rollup from its transactions once and
// prints the user-years that drifted. It exits 1 when drift remains.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"bilancio/internal/cli"
	applog "bilancio/internal/log"
	"bilancio/internal/services"
)

func main() {
	os.Exit(run())
}

func run() int {
	repair := flag.Bool("repair", false, "overwrite drifted rollups with recomputed values")
	flag.Parse()

	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, applog.ComponentAudit)

	ctx := context.Background()
	res := cli.InitBackend(ctx, logger, cfg, false)
	defer res.Close()

	reconciler := services.NewReconciler(res.Store, cfg.AuditConcurrency)
	drifted, err := reconciler.AuditAll(ctx, *repair)
	if err != nil {
		logger.Error("Audit failed", "error", err)
		return 1
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USER\tYEAR\tMONTH\tEXPECTED INCOME\tACTUAL INCOME\tEXPECTED EXPENSE\tACTUAL EXPENSE\tREPAIRED")
	for _, report := range drifted {
		for _, d := range report.Drifts {
			month := "year"
			if d.Month >= 0 {
				month = fmt.Sprintf("%02d", d.Month+1)
			}
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%s\t%t\n",
				report.UserID, report.Year, month,
				d.ExpectedIncome.StringFixed(2), d.ActualIncome.StringFixed(2),
				d.ExpectedExpense.StringFixed(2), d.ActualExpense.StringFixed(2),
				report.Repaired)
		}
	}
	tw.Flush()

	if len(drifted) > 0 && !*repair {
		return 1
	}
	return 0
}
