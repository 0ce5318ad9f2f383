package main

import (
	"fmt"
	"os"

	"github.com/Brownie44l1/facenet-api/internal/handlers"
	"github.com/Brownie44l1/facenet-api/internal/model"
	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

var embedCmd = &cobra.Command{
	Use:   "embed <image>",
	Short: "Print the embedding of a local image file as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runEmbed,
}

func init() {
	rootCmd.AddCommand(embedCmd)
}

func runEmbed(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}

	pre, modelServer, err := loadPipeline(cfg)
	if err != nil {
		return err
	}
	defer modelServer.Close()

	handler := handlers.NewHandler(modelServer, pre, nil)
	embedding, err := handler.Embed(cmd.Context(), data)
	if err != nil {
		return err
	}

	return json.NewEncoder(cmd.OutOrStdout()).Encode(model.EmbeddingResponse{Embedding: embedding})
}
