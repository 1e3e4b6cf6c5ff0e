package commands

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/spf13/cobra"
)

var statusURL string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the current tip of the node",
	Run:   statusRun,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVarP(&statusURL, "url", "u", "http://localhost:8080", "Url of the node.")
}

func statusRun(cmd *cobra.Command, args []string) {
	resp, err := http.Get(fmt.Sprintf("%s/v1/tip", statusURL))
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()

	var tip struct {
		Hash       string `json:"hash"`
		Slot       uint64 `json:"slot"`
		Mechanism  string `json:"mechanism"`
		LedgerHash string `json:"ledger_hash"`
		Difficulty string `json:"difficulty"`
	}

	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(&tip); err != nil {
		log.Fatal(err)
	}

	fmt.Println("hash:      ", tip.Hash)
	fmt.Println("slot:      ", tip.Slot)
	fmt.Println("mechanism: ", tip.Mechanism)
	fmt.Println("ledger:    ", tip.LedgerHash)
	fmt.Println("difficulty:", tip.Difficulty)
}
