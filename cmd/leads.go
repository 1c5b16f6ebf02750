package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/leadscout/internal/model"
	"github.com/sells-group/leadscout/internal/store"
)

var (
	leadsTier     string
	leadsStatus   string
	leadsMinScore int
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "List qualified leads",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := store.New(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close()

		leads, err := st.ListLeads(ctx, store.LeadFilter{
			Tier:     model.Tier(leadsTier),
			Status:   model.LeadStatus(leadsStatus),
			MinScore: leadsMinScore,
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(leads)
	},
}

func init() {
	leadsCmd.Flags().StringVar(&leadsTier, "tier", "", "filter by tier (HOT, WARM, COLD)")
	leadsCmd.Flags().StringVar(&leadsStatus, "status", "", "filter by status (MQL, SQL, REJECTED)")
	leadsCmd.Flags().IntVar(&leadsMinScore, "min-score", 0, "minimum score")
	rootCmd.AddCommand(leadsCmd)
}
