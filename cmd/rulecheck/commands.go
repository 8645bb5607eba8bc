package main

import (
	"fmt"
	"io"
	"strings"

	"casefile-backend/chain"
	"casefile-backend/models"
	"casefile-backend/rules"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func loadSnapshot(dir string) (*rules.Snapshot, error) {
	l := rules.NewLoader(rules.PathsIn(dir))
	if err := l.Load(); err != nil {
		return nil, err
	}
	return l.Current()
}

func newValidateCmd(dir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load every rule file and report what was found",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := loadSnapshot(*dir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ %d evidence types\n", len(snap.EvidenceTypes()))
			fmt.Fprintf(out, "✓ %d evidence chains\n", len(snap.Chains()))

			// chains naming a type the catalogue does not know would never be satisfied
			var unknown []string
			for _, ch := range snap.Chains() {
				for _, req := range ch.RequiredEvidenceTypes {
					if _, ok := snap.EvidenceTypeByName(req.EvidenceType); !ok {
						unknown = append(unknown, fmt.Sprintf("%s: %s", ch.ChainID, req.EvidenceType))
					}
				}
			}
			if len(unknown) > 0 {
				return fmt.Errorf("%w: chains reference unknown evidence types: %s",
					rules.ErrConfigInvalid, strings.Join(unknown, ", "))
			}
			fmt.Fprintln(out, "✓ rule files are valid")
			return nil
		},
	}
}

func newChainsCmd(dir *string) *cobra.Command {
	var cause, creditor, debtor string

	cmd := &cobra.Command{
		Use:   "chains",
		Short: "Show the chains and card templates that apply to a case shape",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := loadSnapshot(*dir)
			if err != nil {
				return err
			}
			c := &models.Case{
				ID:            uuid.Nil,
				CauseOfAction: models.CauseOfAction(cause),
				CreditorType:  models.PartyType(creditor),
				DebtorType:    models.PartyType(debtor),
			}
			// an empty case shows every requirement as missing
			dashboard := chain.Evaluate(snap, c, nil, nil)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s / %s / %s: %d chains, %d requirements\n",
				cause, creditor, debtor, len(dashboard.Chains), dashboard.TotalRequirements)
			for _, ch := range dashboard.Chains {
				fmt.Fprintf(out, "\n%s (%s)\n", ch.ChainName, ch.ChainID)
				for _, req := range ch.Requirements {
					printRequirement(out, req, 1)
				}
			}

			templates := snap.CardSlotTemplates(c)
			fmt.Fprintf(out, "\n%d card slot templates\n", len(templates))
			for _, tpl := range templates {
				fmt.Fprintf(out, "  %s", tpl.TemplateID)
				if tpl.TemplateName != "" {
					fmt.Fprintf(out, " (%s)", tpl.TemplateName)
				}
				fmt.Fprintln(out)
				for _, ct := range tpl.CardTypes {
					fmt.Fprintf(out, "    - %s: %s\n", ct.ID(), ct.CardType)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&cause, "cause", string(models.CauseDebt), "cause of action (contract|debt)")
	cmd.Flags().StringVar(&creditor, "creditor", string(models.PartyTypePerson), "creditor party type (person|company|individual)")
	cmd.Flags().StringVar(&debtor, "debtor", string(models.PartyTypePerson), "debtor party type (person|company|individual)")
	return cmd
}

func printRequirement(out io.Writer, req chain.Requirement, depth int) {
	indent := strings.Repeat("  ", depth)
	label := req.EvidenceType
	if req.Role != "" {
		label += " [" + req.Role.Label() + "]"
	}
	if label == "" {
		label = req.Kind
	}
	fmt.Fprintf(out, "%s- %s", indent, label)
	if req.CoreSlotsCount > 0 {
		fmt.Fprintf(out, " (core slots: %d)", req.CoreSlotsCount)
	}
	fmt.Fprintln(out)
	for _, sub := range req.SubGroups {
		printRequirement(out, sub, depth+1)
	}
	for _, sub := range req.SubRequirements {
		printRequirement(out, sub, depth+1)
	}
}

func newGuideCmd(dir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "guide",
		Short: "Print the classification guide sent to the classifier",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := loadSnapshot(*dir)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), snap.ClassificationGuide())
			return nil
		},
	}
}
