// Command searchctl loads data into search applications and moves their
// definitions in and out of the configuration store.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cheggaaa/pb/v3"

	"oc-search-go/internal/config"
	"oc-search-go/internal/pipeline"
	"oc-search-go/internal/plugin"
	"oc-search-go/internal/repository"
	"oc-search-go/internal/schema"
	"oc-search-go/internal/service"
	"oc-search-go/pkg/database"
	"oc-search-go/pkg/es"
	"oc-search-go/pkg/log"
	"oc-search-go/pkg/token"
)

const usage = `usage: searchctl <command> [flags]

commands:
  import-csv        load a CSV file into a search index
  import-jsonl      load a JSON-lines package file into a search index
  export-schema     write a search definition as JSON
  import-schema     load a search definition from JSON
  import-ckan-yaml  build a search definition from a CKAN scheming YAML file
  issue-token       sign an admin token for the schema routes
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "import-csv":
		err = importData(ctx, cmd, args, false)
	case "import-jsonl":
		err = importData(ctx, cmd, args, true)
	case "export-schema":
		err = exportSchema(ctx, args)
	case "import-schema":
		err = importSchema(ctx, args)
	case "import-ckan-yaml":
		err = importCKAN(ctx, args)
	case "issue-token":
		err = issueToken(args)
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	log.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "searchctl %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

// setup loads the configuration, starts logging and opens the configuration store.
func setup(configPath string) (config.Config, repository.SchemaRepository, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, nil, err
	}
	config.Conf = cfg
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	database.InitMySQL(cfg.Database.MySQL.DSN)
	if err := repository.AutoMigrate(database.DB); err != nil {
		return cfg, nil, fmt.Errorf("migrate configuration store: %w", err)
	}
	return cfg, repository.NewSchemaRepository(database.DB), nil
}

func importData(ctx context.Context, cmd string, args []string, jsonl bool) error {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	configPath := fs.String("config", "./configs/config.yaml", "configuration file")
	searchID := fs.String("search", "", "search application id")
	file := fs.String("file", "", "input file")
	format := fs.String("format", schema.DefaultFormat, "record format of the file")
	mode := fs.String("mode", "", "what to remove before loading: purge, format or append")
	quiet := fs.Bool("quiet", false, "do not show a progress bar")
	_ = fs.Parse(args)

	if *searchID == "" || *file == "" {
		return fmt.Errorf("-search and -file are required")
	}
	importMode, err := pipeline.ParseMode(*mode)
	if err != nil {
		return err
	}

	cfg, repo, err := setup(*configPath)
	if err != nil {
		return err
	}
	s, err := schema.NewCache(repo, time.Minute).Get(ctx, *searchID)
	if err != nil {
		return err
	}
	client, err := es.NewClient(cfg.Elasticsearch)
	if err != nil {
		return err
	}
	if err := client.EnsureIndex(ctx, s); err != nil {
		return err
	}

	f, err := os.Open(*file)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}

	var r io.Reader = f
	var bar *pb.ProgressBar
	if !*quiet {
		bar = pb.Full.Start64(info.Size())
		r = bar.NewProxyReader(f)
	}

	opts := pipeline.Options{Format: *format, Mode: importMode, Hooks: plugin.NewRegistry().For(s.ID())}
	processor := pipeline.NewProcessor(client, cfg.Import)
	var sum *pipeline.Summary
	if jsonl {
		sum, err = processor.ImportJSONL(ctx, s, r, opts)
	} else {
		sum, err = processor.ImportCSV(ctx, s, r, opts)
	}
	if bar != nil {
		bar.Finish()
	}
	if sum != nil {
		fmt.Printf("read %d, indexed %d, skipped %d, failed %d, row errors %d, warnings %d\n",
			sum.Read, sum.Indexed, sum.Skipped, sum.Failed, sum.RowErrors, sum.Warnings)
		if sum.ErrorFile != "" {
			fmt.Printf("failed batches written to %s\n", sum.ErrorFile)
		}
	}
	if err != nil {
		return err
	}
	return service.NewAdminService(repo, noopInvalidator{}).MarkImported(ctx, s.ID())
}

func exportSchema(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export-schema", flag.ExitOnError)
	configPath := fs.String("config", "./configs/config.yaml", "configuration file")
	searchID := fs.String("search", "", "search application id")
	out := fs.String("out", "-", "output file, - for stdout")
	_ = fs.Parse(args)

	if *searchID == "" {
		return fmt.Errorf("-search is required")
	}
	_, repo, err := setup(*configPath)
	if err != nil {
		return err
	}
	def, err := service.NewAdminService(repo, noopInvalidator{}).ExportDefinition(ctx, *searchID)
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if *out != "-" {
		f, err := os.Create(*out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	return schema.WriteDefinition(w, def)
}

func importSchema(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("import-schema", flag.ExitOnError)
	configPath := fs.String("config", "./configs/config.yaml", "configuration file")
	file := fs.String("file", "", "definition JSON file")
	_ = fs.Parse(args)

	if *file == "" {
		return fmt.Errorf("-file is required")
	}
	_, repo, err := setup(*configPath)
	if err != nil {
		return err
	}
	f, err := os.Open(*file)
	if err != nil {
		return err
	}
	defer f.Close()

	def, err := service.NewAdminService(repo, noopInvalidator{}).ImportDefinition(ctx, f)
	if err != nil {
		return err
	}
	fmt.Printf("imported %s: %d fields, %d codes\n", def.Search.SearchID, len(def.Fields), len(def.Codes))
	return nil
}

func importCKAN(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("import-ckan-yaml", flag.ExitOnError)
	configPath := fs.String("config", "./configs/config.yaml", "configuration file")
	file := fs.String("file", "", "CKAN scheming YAML file")
	var opts schema.CKANOptions
	fs.StringVar(&opts.SearchID, "search", "", "search application id")
	fs.StringVar(&opts.TitleEN, "title-en", "", "English title")
	fs.StringVar(&opts.TitleFR, "title-fr", "", "French title")
	_ = fs.Parse(args)

	if *file == "" || opts.SearchID == "" {
		return fmt.Errorf("-file and -search are required")
	}
	_, repo, err := setup(*configPath)
	if err != nil {
		return err
	}
	f, err := os.Open(*file)
	if err != nil {
		return err
	}
	defer f.Close()

	def, err := service.NewAdminService(repo, noopInvalidator{}).ImportCKAN(ctx, f, opts)
	if err != nil {
		return err
	}
	fmt.Printf("imported %s: %d fields, %d codes\n", def.Search.SearchID, len(def.Fields), len(def.Codes))
	return nil
}

func issueToken(args []string) error {
	fs := flag.NewFlagSet("issue-token", flag.ExitOnError)
	configPath := fs.String("config", "./configs/config.yaml", "configuration file")
	user := fs.String("user", "", "operator name recorded in the token")
	_ = fs.Parse(args)

	if *user == "" {
		return fmt.Errorf("-user is required")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	signed, err := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours).GenerateToken(*user, token.RoleAdmin)
	if err != nil {
		return err
	}
	fmt.Println(signed)
	return nil
}

// noopInvalidator stands in for the schema cache, which lives in the server.
type noopInvalidator struct{}

func (noopInvalidator) Invalidate() {}
