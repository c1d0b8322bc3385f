package commands

import (
	"context"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/meridianhq/meridian/config"
	"github.com/meridianhq/meridian/entity"
	"github.com/meridianhq/meridian/logger"
)

// EntitiesCmd manages the entity hierarchy
var EntitiesCmd = &cobra.Command{
	Use:   "entities",
	Short: "Manage the account/project/person hierarchy",
	Long: `Manage the account/project/person hierarchy that signals attach to.

Examples:
  meridian entities add acct_acme --type account --name "Acme Corp"
  meridian entities add proj_rollout --type project --name "Rollout" --parent acct_acme
  meridian entities ls`,
}

var (
	entityTypeFlag   string
	entityNameFlag   string
	entityParentFlag string
)

var entitiesAddCmd = &cobra.Command{
	Use:   "add <entity-id>",
	Short: "Add an entity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		database, err := openDatabase(cfg, "")
		if err != nil {
			return err
		}
		defer database.Close()

		store := entity.NewStore(database, logger.Logger)
		e := &entity.Entity{
			ID:       args[0],
			Type:     entity.Type(entityTypeFlag),
			Name:     entityNameFlag,
			ParentID: entityParentFlag,
		}
		if err := store.Create(context.Background(), e); err != nil {
			return err
		}

		fmt.Printf("Created %s %s\n", e.Type, e.ID)
		return nil
	},
}

var entitiesLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List entities",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		database, err := openDatabase(cfg, "")
		if err != nil {
			return err
		}
		defer database.Close()

		store := entity.NewStore(database, logger.Logger)
		entities, err := store.List(context.Background())
		if err != nil {
			return err
		}

		if len(entities) == 0 {
			fmt.Println("No entities")
			return nil
		}

		rows := pterm.TableData{{"ID", "TYPE", "NAME", "PARENT"}}
		for _, e := range entities {
			rows = append(rows, []string{e.ID, string(e.Type), e.Name, e.ParentID})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
	},
}

func init() {
	entitiesAddCmd.Flags().StringVar(&entityTypeFlag, "type", "", "Entity type: account, project or person (required)")
	entitiesAddCmd.Flags().StringVar(&entityNameFlag, "name", "", "Display name (required)")
	entitiesAddCmd.Flags().StringVar(&entityParentFlag, "parent", "", "Parent entity ID")
	entitiesAddCmd.MarkFlagRequired("type")
	entitiesAddCmd.MarkFlagRequired("name")

	EntitiesCmd.AddCommand(entitiesAddCmd)
	EntitiesCmd.AddCommand(entitiesLsCmd)
}
