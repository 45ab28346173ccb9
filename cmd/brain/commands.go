package main

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/studykit/brain/internal/config"
)

// --- index ---

var indexCmd = &cobra.Command{
	Use:   "index <file.pdf>",
	Short: "Index a PDF into the knowledge base",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		source, _ := cmd.Flags().GetString("source")
		if source == "" {
			source = path
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/ingest", map[string]string{
			"document": base64.StdEncoding.EncodeToString(data),
			"source":   source,
		})
		if err != nil {
			return err
		}

		var result struct {
			Source        string `json:"source"`
			ChunksIndexed int    `json:"chunks_indexed"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Indexed %s (%d chunks)", result.Source, result.ChunksIndexed)
		return nil
	},
}

func init() {
	indexCmd.Flags().String("source", "", "source label for the document (default: file path)")
}

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question answered from your indexed notes",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		topK, _ := cmd.Flags().GetInt("top-k")
		mode, _ := cmd.Flags().GetString("mode")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/ask", map[string]any{
			"question": question,
			"top_k":    topK,
			"mode":     mode,
		})
		if err != nil {
			return err
		}

		var result struct {
			Answer  string   `json:"answer"`
			Sources []string `json:"sources"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Println(result.Answer)
		if len(result.Sources) > 0 {
			fmt.Printf("\n%s\n", colorize(colorBold, "Sources:"))
			for _, s := range result.Sources {
				fmt.Printf("  %s\n", colorize(colorCyan, s))
			}
		}
		return nil
	},
}

func init() {
	askCmd.Flags().Int("top-k", 0, "number of chunks to retrieve (default: server setting)")
	askCmd.Flags().String("mode", "", "backend mode: auto, gemini, or ollama")
}

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the knowledge base without generating an answer",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/v1/search?q=%s&limit=%d", url.QueryEscape(query), limit)
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var results []struct {
			Text   string  `json:"text"`
			Source string  `json:"source"`
			Score  float64 `json:"score"`
		}
		if err := decodeJSON(resp, &results); err != nil {
			return err
		}

		if len(results) == 0 {
			fmt.Println("No results found.")
			return nil
		}

		for i, r := range results {
			fmt.Printf("\n%s [score: %.3f]\n", colorize(colorBold, fmt.Sprintf("Result %d", i+1)), r.Score)
			fmt.Printf("  %s\n", colorize(colorCyan, r.Source))
			text := r.Text
			if len(text) > 500 {
				text = text[:500] + "..."
			}
			fmt.Printf("  %s\n", text)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().Int("limit", 3, "maximum number of results")
}

// --- summarize ---

var summarizeCmd = &cobra.Command{
	Use:   "summarize <file.pdf>",
	Short: "Generate a study summary of a PDF",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		simple, _ := cmd.Flags().GetBool("simple")
		mode, _ := cmd.Flags().GetString("mode")

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/summarize", map[string]any{
			"document": base64.StdEncoding.EncodeToString(data),
			"simple":   simple,
			"mode":     mode,
		})
		if err != nil {
			return err
		}

		var result struct {
			Summary string `json:"summary"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Println(result.Summary)
		return nil
	},
}

func init() {
	summarizeCmd.Flags().Bool("simple", false, "add a beginner-level rewrite of the summary")
	summarizeCmd.Flags().String("mode", "", "backend mode: auto, gemini, or ollama")
}

// --- clear ---

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the entire knowledge base",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This will delete ALL indexed knowledge. Use --confirm to proceed.")
			return nil
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/v1/knowledge")
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Knowledge base cleared")
		return nil
	},
}

func init() {
	clearCmd.Flags().Bool("confirm", false, "confirm deletion")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configSetSecretCmd = &cobra.Command{
	Use:   "set-secret <account> <value>",
	Short: "Store a secret (e.g. gemini_api_key) in the platform secret store",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		account, value := args[0], args[1]

		if err := config.SetSecret(account, value); err != nil {
			return err
		}

		printSuccess("Stored secret %s", account)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configSetSecretCmd)
}
