package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/gateway/multiapi/common/config"
)

// keyImportEntry mirrors the control plane's POST /api-keys body, read in
// bulk from an operator-supplied seed file instead of one curl per key.
type keyImportEntry struct {
	ProviderId int64  `json:"provider_id" yaml:"provider_id"`
	Key        string `json:"key" yaml:"key"`
	Name       string `json:"name" yaml:"name"`
	Weight     int32  `json:"weight" yaml:"weight"`
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage upstream provider keys",
}

var keysImportFile string

var keysImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Seed upstream keys from a YAML or JSON file into a running gateway",
	RunE:  runKeysImport,
}

func init() {
	keysImportCmd.Flags().StringVarP(&keysImportFile, "file", "f", "", "path to a YAML or JSON file listing upstream keys (required)")
	_ = keysImportCmd.MarkFlagRequired("file")
	keysCmd.AddCommand(keysImportCmd)
	rootCmd.AddCommand(keysCmd)
}

func runKeysImport(_ *cobra.Command, _ []string) error {
	raw, err := os.ReadFile(keysImportFile)
	if err != nil {
		return err
	}

	var entries []keyImportEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return fmt.Errorf("parse %s: %w", keysImportFile, err)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	adminURL := fmt.Sprintf("http://%s:%d/api-keys", config.AdminHost, config.AdminPort)

	for _, entry := range entries {
		body, err := json.Marshal(entry)
		if err != nil {
			return err
		}

		httpReq, err := http.NewRequest(http.MethodPost, adminURL, bytes.NewReader(body))
		if err != nil {
			return err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-admin-key", config.AdminAPIKey)

		resp, err := client.Do(httpReq)
		if err != nil {
			return fmt.Errorf("import key for provider %d: %w", entry.ProviderId, err)
		}
		resp.Body.Close()

		if resp.StatusCode >= 300 {
			return fmt.Errorf("import key for provider %d: admin API returned %s", entry.ProviderId, resp.Status)
		}
		fmt.Printf("imported key %q for provider %d\n", entry.Name, entry.ProviderId)
	}

	return nil
}
