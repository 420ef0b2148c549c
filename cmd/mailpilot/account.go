package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/foxzi/mailpilot/internal/account"
	"github.com/foxzi/mailpilot/internal/config"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Provider account management commands",
}

var accountAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a provider account",
	RunE:  runAccountAdd,
}

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "List provider accounts",
	RunE:  runAccountList,
}

var accountDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a provider account",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountDelete,
}

var (
	accountName      string
	accountAPIKey    string
	accountBaseURL   string
	accountFromEmail string
	accountFromName  string
	accountYes       bool
)

func init() {
	accountAddCmd.Flags().StringVar(&accountName, "name", "", "Account name")
	accountAddCmd.Flags().StringVar(&accountAPIKey, "api-key", "", "Provider API key (will prompt if not provided)")
	accountAddCmd.Flags().StringVar(&accountBaseURL, "base-url", "", "Provider base URL override")
	accountAddCmd.Flags().StringVar(&accountFromEmail, "from-email", "", "Default sender email")
	accountAddCmd.Flags().StringVar(&accountFromName, "from-name", "", "Default sender name")
	accountAddCmd.MarkFlagRequired("name")

	accountDeleteCmd.Flags().BoolVarP(&accountYes, "yes", "y", false, "Skip confirmation")

	accountCmd.AddCommand(accountAddCmd)
	accountCmd.AddCommand(accountListCmd)
	accountCmd.AddCommand(accountDeleteCmd)
}

func openAccounts() (*account.Store, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	return account.NewStore(cfg.Storage.Path, cfg.Storage.Secret)
}

func runAccountAdd(cmd *cobra.Command, args []string) error {
	store, err := openAccounts()
	if err != nil {
		return err
	}
	defer store.Close()

	apiKey := accountAPIKey
	if apiKey == "" {
		fmt.Print("Enter API key: ")
		keyBytes, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			return fmt.Errorf("failed to read API key: %w", err)
		}
		fmt.Println()
		apiKey = strings.TrimSpace(string(keyBytes))
	}

	a := &account.Account{
		Name:      accountName,
		APIKey:    apiKey,
		BaseURL:   accountBaseURL,
		FromEmail: accountFromEmail,
		FromName:  accountFromName,
	}
	if err := store.Create(context.Background(), a); err != nil {
		if errors.Is(err, account.ErrDuplicateName) {
			return fmt.Errorf("account %s already exists", accountName)
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	fmt.Printf("Account %s created (id %s)\n", a.Name, a.ID)
	return nil
}

func runAccountList(cmd *cobra.Command, args []string) error {
	store, err := openAccounts()
	if err != nil {
		return err
	}
	defer store.Close()

	accounts, err := store.List(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("%-36s  %-20s  %-16s  %-30s  %s\n", "ID", "Name", "API key", "Sender", "Created")
	fmt.Println(strings.Repeat("-", 130))

	for _, a := range accounts {
		fmt.Printf("%-36s  %-20s  %-16s  %-30s  %s\n",
			a.ID, a.Name, a.MaskedKey(), a.FromEmail, a.CreatedAt.Format("2006-01-02 15:04"))
	}

	return nil
}

func runAccountDelete(cmd *cobra.Command, args []string) error {
	id := args[0]

	store, err := openAccounts()
	if err != nil {
		return err
	}
	defer store.Close()

	if !accountYes {
		fmt.Printf("Are you sure you want to delete account %s? [y/N]: ", id)
		reader := bufio.NewReader(os.Stdin)
		response, _ := reader.ReadString('\n')
		response = strings.TrimSpace(strings.ToLower(response))

		if response != "y" && response != "yes" {
			fmt.Println("Cancelled")
			return nil
		}
	}

	if err := store.Delete(context.Background(), id); err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return fmt.Errorf("account %s not found", id)
		}
		return err
	}

	fmt.Printf("Account %s deleted\n", id)
	return nil
}
