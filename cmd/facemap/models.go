package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dudu/facemap/internal/inference"
	"github.com/dudu/facemap/internal/swapper"
)

var modelsNative bool

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Check the model files and print their signatures",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runModels()
	},
}

func init() {
	modelsCmd.Flags().BoolVar(&modelsNative, "native", false, "also try importing each model without ONNX Runtime")
	rootCmd.AddCommand(modelsCmd)
}

func runModels() error {
	m := settings.Models
	onnx := []struct{ role, name string }{
		{"detector", m.Detector},
		{"encoder", m.Encoder},
		{"swapper", m.Swapper},
		{"enhancer", m.Enhancer},
		{"safety", m.Safety},
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ROLE\tFILE\tINPUTS\tOUTPUTS\tPRODUCER")
	fmt.Fprintln(w, "----\t----\t------\t-------\t--------")

	missing := 0
	for _, model := range onnx {
		info, err := inference.Describe(m.Path(model.name))
		if err != nil {
			missing++
			fmt.Fprintf(w, "%s\t%s\t-\t-\t%v\n", model.role, model.name, err)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", model.role, model.name,
			describeTensors(info.Inputs), describeTensors(info.Outputs), info.Producer)
	}
	if m.Emap != "" {
		if _, err := swapper.LoadEmap(m.Path(m.Emap)); err != nil {
			missing++
			fmt.Fprintf(w, "emap\t%s\t-\t-\t%v\n", m.Emap, err)
		} else {
			fmt.Fprintf(w, "emap\t%s\t512x512\t-\t-\n", m.Emap)
		}
	}
	w.Flush()

	if modelsNative {
		fmt.Println()
		for _, model := range onnx {
			native, err := inference.ImportNative(m.Path(model.name))
			if err != nil {
				fmt.Printf("%s: %v\n", model.role, err)
				continue
			}
			fmt.Printf("%s: %d layers, %d weight tensors\n", model.role, len(native.Layers), native.Weights)
		}
	}

	if missing > 0 {
		return fmt.Errorf("%d model files could not be loaded from %s", missing, m.Dir)
	}
	return nil
}

func describeTensors(ts []inference.TensorInfo) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = fmt.Sprintf("%s%v", t.Name, t.Shape)
	}
	return strings.Join(parts, " ")
}
