// =============================================================================
// ASYCUDA Export - Main Entry Point
// =============================================================================
//
// USAGE:
//   asycuda-export process   - Convert the sales reports in the input directory
//   asycuda-export validate  - Validate the configuration or exported files
//   asycuda-export serve     - Run the HTTP API
//   asycuda-export version   - Display the application version
//
// LAYOUT:
//   cmd/        : CLI command definitions (Cobra)
//   internal/   : Declaration model, catalog, builder, validation, emitters,
//                 pipeline and backends
//   pkg/utils/  : File discovery, archiving and the processing summary
//   mappings/   : Per-shop mapping configurations
//
// =============================================================================

package main

import (
	"github.com/ginjaninja78/asycuda-export/cmd"
)

func main() {
	cmd.Execute()
}
