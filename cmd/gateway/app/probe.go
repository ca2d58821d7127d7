package app

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bujia-iot/carwings-gateway/pkg/probe"
)

var probeDecoders = map[string]func([]byte) (*probe.Result, error){
	"crm": probe.DecodeCRM,
	"dot": probe.DecodeDOT,
}

func newProbeCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "probe crm|dot <file>",
		Short:     "解码CRM/DOT遥测探针文件并以JSON输出",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"crm", "dot"},
		RunE: func(cmd *cobra.Command, args []string) error {
			decode, ok := probeDecoders[args[0]]
			if !ok {
				return fmt.Errorf("unknown probe type %q, want crm or dot", args[0])
			}
			data, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			result, err := decode(data)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
}
