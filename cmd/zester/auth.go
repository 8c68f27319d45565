package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"zester/pkg/auth"
	"zester/pkg/logger"
	"zester/pkg/soundcloud"
	"zester/pkg/ui"
)

var (
	skipVerify bool
	showGuide  bool
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage SoundCloud credentials",
	Long: `Manage stored SoundCloud credentials securely.

Credentials are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (ZESTER_OAUTH_TOKEN, ZESTER_CLIENT_ID)

Never share your credentials or config files!`,
}

// loginCmd represents the auth login command
var loginCmd = &cobra.Command{
	Use:   "login [name]",
	Short: "Store SoundCloud credentials securely",
	Long: `Store an OAuth token and client id in the system keychain or an
encrypted file.

You will be prompted for:
  - An account name (if not provided)
  - The OAuth token (hidden as you type)
  - The client id

The credentials are checked against the API before they are stored
unless --skip-verify is given. Run with --guide for help finding them.`,
	Example: `  # Interactive login
  zester auth login

  # Login under a name
  zester auth login personal`,
	Args: cobra.MaximumNArgs(1),
	Run:  runLogin,
}

// logoutCmd represents the auth logout command
var logoutCmd = &cobra.Command{
	Use:   "logout [name]",
	Short: "Remove stored credentials",
	Long: `Remove stored SoundCloud credentials.

If no name is provided, you will be shown a list of stored accounts
to choose from.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runLogout,
}

// listCmd represents the auth list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored accounts",
	Long:  `List all stored accounts with masked credentials. The first one is the default.`,
	Run:   runList,
}

// switchCmd represents the auth switch command
var switchCmd = &cobra.Command{
	Use:   "switch [name]",
	Short: "Make a stored account the default",
	Args:  cobra.MaximumNArgs(1),
	Run:   runSwitch,
}

// statusCmd represents the auth status command
var statusCmd = &cobra.Command{
	Use:   "status [name]",
	Short: "Check that stored credentials are accepted",
	Args:  cobra.MaximumNArgs(1),
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(listCmd)
	authCmd.AddCommand(switchCmd)
	authCmd.AddCommand(statusCmd)

	loginCmd.Flags().BoolVar(&skipVerify, "skip-verify", false, "store without checking the credentials against the API")
	loginCmd.Flags().BoolVar(&showGuide, "guide", false, "show where to find the token and client id")
}

func newManager() *auth.Manager {
	manager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize credential manager", err.Error())
		os.Exit(1)
	}
	return manager
}

func runLogin(cmd *cobra.Command, args []string) {
	if showGuide {
		auth.ShowTokenGuide(os.Stdout)
	}

	manager := newManager()
	reader := bufio.NewReader(os.Stdin)

	var name string
	if len(args) > 0 {
		name = strings.TrimSpace(args[0])
	} else {
		fmt.Print("Account name: ")
		input, err := reader.ReadString('\n')
		if err != nil {
			ui.PrintError("Failed to read account name", err.Error())
			os.Exit(1)
		}
		name = strings.TrimSpace(input)
	}
	if name == "" {
		ui.PrintError("Account name is required", "")
		os.Exit(1)
	}

	if existing, _ := manager.Retrieve(name); existing != nil {
		fmt.Printf("\n⚠️  Account '%s' already exists. Update credentials? (y/N): ", name)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return
		}
	}

	fmt.Println("\n🔐 Enter your credentials (the token is hidden as you type):")
	fmt.Println()

	var cred auth.Credential
	var token, clientID string
	for {
		fmt.Print("OAuth token: ")
		t, err := readPassword(reader)
		if err != nil {
			ui.PrintError("Failed to read token", err.Error())
			os.Exit(1)
		}
		token = strings.TrimPrefix(t, "OAuth ")

		fmt.Print("Client id: ")
		input, err := reader.ReadString('\n')
		if err != nil {
			ui.PrintError("Failed to read client id", err.Error())
			os.Exit(1)
		}
		clientID = strings.TrimSpace(input)

		cred, err = auth.NewCredential(token, clientID)
		if err == nil {
			break
		}
		fmt.Printf("\n❌ %v\n", err)
		fmt.Print("\nTry again? (Y/n): ")
		retry, _ := reader.ReadString('\n')
		if strings.ToLower(strings.TrimSpace(retry)) == "n" {
			os.Exit(1)
		}
	}

	account := &auth.Account{
		Name:       name,
		OAuthToken: token,
		ClientID:   clientID,
	}

	if !skipVerify {
		fmt.Println("\n🔎 Checking credentials...")
		me, err := verifyCredential(cred)
		if err != nil {
			ui.PrintError("Credentials were rejected", err.Error())
			fmt.Println("\nUse --skip-verify to store them anyway.")
			os.Exit(1)
		}
		account.UserID = me.ID
		ui.PrintInfo("Authenticated as", me.Username)
	}

	fmt.Println("\n💾 Storing credentials securely...")
	if err := manager.Store(account); err != nil {
		ui.PrintError("Failed to store credentials", err.Error())
		os.Exit(1)
	}

	ui.PrintSuccess(fmt.Sprintf("Account saved: %s", name))
	fmt.Println("\n📖 Quick Start:")
	fmt.Println("   $ zester archive")
	fmt.Printf("   $ zester archive likes --account %s\n", name)
	fmt.Println("\n⚠️  Never share your credentials or config files!")
}

func runLogout(cmd *cobra.Command, args []string) {
	manager := newManager()

	var name string
	if len(args) > 0 {
		name = args[0]
	} else {
		accounts, err := manager.List()
		if err != nil || len(accounts) == 0 {
			ui.PrintError("No stored accounts found", "")
			return
		}
		name = chooseAccount(accounts, "Select account to remove:")
		if name == "" {
			return
		}
	}

	if err := manager.Delete(name); err != nil {
		ui.PrintError("Failed to remove account", err.Error())
		os.Exit(1)
	}
	ui.PrintSuccess("Account removed: " + name)
}

func runList(cmd *cobra.Command, args []string) {
	manager := newManager()

	accounts, err := manager.List()
	if err != nil {
		ui.PrintError("Failed to list accounts", err.Error())
		os.Exit(1)
	}

	if len(accounts) == 0 {
		ui.PrintInfo("No stored accounts", "Use 'zester auth login' to add an account")
		return
	}

	ui.PrintHighlight("Stored Accounts")
	fmt.Println()

	for i, account := range accounts {
		sanitized := auth.SanitizeAccount(account)
		label := sanitized.Name
		if i == 0 {
			label += " (default)"
		}
		fmt.Printf("%d. %s\n", i+1, label)
		fmt.Printf("   OAuth Token: %s\n", sanitized.OAuthToken)
		fmt.Printf("   Client ID: %s\n", sanitized.ClientID)
		if sanitized.UserID != 0 {
			fmt.Printf("   User ID: %d\n", sanitized.UserID)
		}
		fmt.Printf("   Last Modified: %s\n", sanitized.LastModified.Format("2006-01-02 15:04:05"))
		fmt.Println()
	}
}

func runSwitch(cmd *cobra.Command, args []string) {
	manager := newManager()

	accounts, err := manager.List()
	if err != nil || len(accounts) == 0 {
		ui.PrintError("No stored accounts found", "")
		return
	}

	var name string
	if len(args) > 0 {
		name = args[0]
	} else {
		if len(accounts) == 1 {
			ui.PrintInfo("Only one account available", accounts[0].Name)
			return
		}
		name = chooseAccount(accounts, "Select account:")
		if name == "" {
			return
		}
	}

	if err := manager.Touch(name); err != nil {
		ui.PrintError("Failed to switch account", err.Error())
		os.Exit(1)
	}
	ui.PrintSuccess("Default account: " + name)
}

func runStatus(cmd *cobra.Command, args []string) {
	manager := newManager()

	var name string
	if len(args) > 0 {
		name = args[0]
	}
	cred, account, err := manager.Credential(name)
	if err != nil {
		ui.PrintError("No usable credentials", err.Error())
		os.Exit(1)
	}

	ui.PrintInfo("Account", account.Name)
	ui.PrintInfo("Credential", cred.String())

	me, err := verifyCredential(cred)
	if err != nil {
		ui.PrintError("Credentials were rejected", err.Error())
		os.Exit(1)
	}
	ui.PrintSuccess(fmt.Sprintf("Authenticated as %s (id %d)", me.Username, me.ID))
	fmt.Printf("   %d likes, %d playlists\n", me.LikesCount, me.PlaylistCount)
}

// verifyCredential asks the API who the credential belongs to
func verifyCredential(cred auth.Credential) (*soundcloud.Me, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := soundcloud.NewClient(cred, 15*time.Second, logger.NewNopLogger())
	return client.Me(ctx)
}

// chooseAccount shows a numbered menu and returns the picked name, or ""
func chooseAccount(accounts []*auth.Account, prompt string) string {
	fmt.Println(prompt)
	for i, account := range accounts {
		fmt.Printf("  %d. %s\n", i+1, account.Name)
	}
	fmt.Printf("  0. Cancel\n\n")

	reader := bufio.NewReader(os.Stdin)
	fmt.Print("Choice: ")
	input, _ := reader.ReadString('\n')

	var choice int
	fmt.Sscanf(strings.TrimSpace(input), "%d", &choice)

	if choice == 0 {
		return ""
	}
	if choice < 0 || choice > len(accounts) {
		ui.PrintError("Invalid choice", "")
		os.Exit(1)
	}
	return accounts[choice-1].Name
}

// readPassword reads a secret from stdin without echo when stdin is a terminal
func readPassword(reader *bufio.Reader) (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		password, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(password)), nil
		}
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
