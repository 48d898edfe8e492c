package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/joseph-ayodele/invoice-extractor/internal/app"
	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/fields"
	"github.com/joseph-ayodele/invoice-extractor/internal/repository"
)

const usage = `usage: fieldsctl [flags] <command> [args]

commands:
  list                      print fields and presets
  export <json|yaml>        write the schema to stdout
  import <file> [merge]     load a JSON/YAML document into the store (replace by default)
  health                    check the field database (FIELDS_DSN)
`

func main() {
	var (
		configPath = flag.String("config", "", "optional TOML config file")
		path       = flag.String("file", "", "field config file (overrides FIELDS_PATH)")
		dsn        = flag.String("dsn", "", "field config database (overrides FIELDS_DSN)")
	)
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, logger, err := app.Setup(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *path != "" {
		cfg.Fields.Path, cfg.Fields.DSN = *path, ""
	}
	if *dsn != "" {
		cfg.Fields.Path, cfg.Fields.DSN = "", *dsn
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	args := flag.Args()
	switch args[0] {
	case "health":
		err = health(ctx, cfg)
	case "list", "export", "import":
		var store fields.Store
		var closeStore func()
		store, closeStore, err = app.FieldStore(ctx, cfg, logger)
		if err != nil {
			break
		}
		defer closeStore()
		err = run(ctx, store, args)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "fieldsctl %s: %v\n", args[0], err)
		os.Exit(1)
	}
}

func run(ctx context.Context, store fields.Store, args []string) error {
	schema, err := fields.LoadSchema(ctx, store, nil)
	if err != nil {
		return err
	}
	switch args[0] {
	case "list":
		return list(schema)
	case "export":
		format := fields.FormatYAML
		if len(args) > 1 {
			format = fields.Format(strings.ToLower(args[1]))
		}
		data, err := schema.Export(format)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	default:
		if len(args) < 2 {
			return common.NewAppError("USAGE", "import needs a file", common.ErrInvalidInput)
		}
		if store == nil {
			return common.NewAppError("USAGE", "import needs -file or -dsn", common.ErrInvalidInput)
		}
		data, err := os.ReadFile(args[1])
		if err != nil {
			return err
		}
		mode := fields.ImportReplace
		if len(args) > 2 && args[2] == string(fields.ImportMerge) {
			mode = fields.ImportMerge
		}
		if err := schema.Import(data, fields.FormatFromPath(args[1]), mode); err != nil {
			return err
		}
		if err := store.Save(ctx, schema.Document()); err != nil {
			return err
		}
		fmt.Printf("imported %s (%s): %d fields, %d presets\n", args[1], mode, schema.Len(), len(schema.PresetNames()))
		return nil
	}
}

func list(schema *fields.Schema) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tLABEL\tTYPE\tREQUIRED")
	for _, f := range schema.Fields() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", f.Name, f.Label, f.DataType, f.Required)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	for _, name := range schema.PresetNames() {
		p, _ := schema.Preset(name)
		fmt.Printf("\npreset %q: %s\n", name, strings.Join(p, ", "))
	}
	return nil
}

func health(ctx context.Context, cfg *common.Config) error {
	if cfg.Fields.DSN == "" {
		return common.NewAppError("USAGE", "health needs FIELDS_DSN or -dsn", common.ErrInvalidInput)
	}
	db, err := repository.Open(ctx, repository.ConfigFrom(cfg.Fields.DSN, cfg.Database), nil)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.HealthCheck(ctx, 2*time.Second); err != nil {
		return err
	}
	fmt.Printf("DB health (%s): OK\n", db.Dialect)
	return nil
}
