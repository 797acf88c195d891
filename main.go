/*
Copyright 2016 Medcl (m AT medcl.net)

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

   http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	log "github.com/cihub/seelog"
	goflags "github.com/jessevdk/go-flags"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v2"

	"infini.sh/migrate/core/logger"
	"infini.sh/migrate/core/progress"
	"infini.sh/migrate/core/util"
	"infini.sh/migrate/elastic"
	"infini.sh/migrate/migration"
	"infini.sh/migrate/task"
)

// Options shared by every command
type Options struct {
	Source          string   `short:"s" long:"source" description:"source cluster endpoint, ie: http://localhost:9200"`
	SourceAuthStr   string   `short:"m" long:"source_auth" description:"basic auth of source cluster, ie: user:pass"`
	SourceProxy     string   `long:"source_proxy" description:"proxy for source connections, ie: http://127.0.0.1:8080"`
	Target          string   `short:"d" long:"dest" description:"target cluster endpoint, ie: http://localhost:9201"`
	TargetAuthStr   string   `short:"n" long:"dest_auth" description:"basic auth of target cluster, ie: user:pass"`
	TargetProxy     string   `long:"dest_proxy" description:"proxy for target connections"`
	ConfigFile      string   `short:"c" long:"config" description:"cluster config file, yaml, flags take precedence"`
	Exclude         []string `short:"e" long:"exclude" description:"extra system-index patterns to skip, regexp, repeatable"`
	TaskDir         string   `long:"task_dir" description:"directory of the durable task store" default:".migrate-tasks"`
	LogLevel        string   `short:"v" long:"log" description:"log level, options: trace,debug,info,warn,error" default:"info"`
	LogFile         string   `long:"log_file" description:"also write logs to this file"`
	DisableProgress bool     `long:"no_progress" description:"disable progress bars"`
}

var opt Options

// fileConfig is the optional yaml companion of the flags
type fileConfig struct {
	Source  elastic.ClusterConfig `yaml:"source"`
	Target  elastic.ClusterConfig `yaml:"target"`
	Exclude []string              `yaml:"exclude"`
}

func loadClusters() (source, target *elastic.API, err error) {
	cfg := fileConfig{}
	if opt.ConfigFile != "" {
		data, err := os.ReadFile(opt.ConfigFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read config file: %v", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, nil, fmt.Errorf("malformed config file: %v", err)
		}
		opt.Exclude = append(opt.Exclude, cfg.Exclude...)
	}

	applyFlags(&cfg.Source, opt.Source, opt.SourceAuthStr, opt.SourceProxy, "source")
	applyFlags(&cfg.Target, opt.Target, opt.TargetAuthStr, opt.TargetProxy, "target")

	if cfg.Source.Endpoint == "" {
		return nil, nil, fmt.Errorf("no source cluster, set --source or a config file")
	}
	if cfg.Target.Endpoint == "" {
		return nil, nil, fmt.Errorf("no target cluster, set --dest or a config file")
	}
	if cfg.Source.Endpoint == cfg.Target.Endpoint {
		return nil, nil, fmt.Errorf("source and target cluster are the same")
	}

	source = elastic.NewAPI(cfg.Source)
	target = elastic.NewAPI(cfg.Target)

	// target connectivity is probed up front, the source side is covered by
	// the enumeration call every command starts with
	health, err := target.ClusterHealth(context.Background())
	if err != nil {
		return nil, nil, fmt.Errorf("target cluster [%v] unreachable: %v", cfg.Target.Endpoint, err)
	}
	log.Debugf("target cluster [%v] status: %v", health.Name, health.Status)

	return source, target, nil
}

func applyFlags(cfg *elastic.ClusterConfig, endpoint, authStr, proxy, name string) {
	if endpoint != "" {
		cfg.Endpoint = strings.TrimSuffix(endpoint, "/")
	}
	if authStr != "" && strings.Contains(authStr, ":") {
		pair := strings.SplitN(authStr, ":", 2)
		cfg.Username = pair[0]
		cfg.Password = pair[1]
	}
	if proxy != "" {
		cfg.HTTPProxy = proxy
	}
	if cfg.Name == "" {
		cfg.Name = name
	}
}

func enumerate(ctx context.Context, api *elastic.API) ([]migration.IndexDescriptor, error) {
	filter, err := migration.NewSystemIndexFilter(opt.Exclude)
	if err != nil {
		return nil, err
	}
	indices, err := migration.ListBusinessIndices(ctx, api, filter)
	if err != nil {
		return nil, err
	}
	if len(indices) == 0 {
		return nil, migration.ErrNoIndices
	}
	log.Infof("found %v business indices on source", len(indices))
	return indices, nil
}

// signalContext cancels on SIGINT/SIGTERM so a running batch stops issuing
// new jobs while in-flight ones drain
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-c
		log.Info("interrupted, finishing in-flight jobs")
		cancel()
	}()
	return ctx, cancel
}

// SchemaCommand replicates settings+mappings of every business index
type SchemaCommand struct{}

func (c *SchemaCommand) Execute(args []string) error {
	source, target, err := loadClusters()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	indices, err := enumerate(ctx, source)
	if err != nil {
		return err
	}

	replicator := migration.SchemaReplicator{Source: source, Target: target}
	created, existed, failed := 0, 0, []string{}
	for _, idx := range indices {
		outcome, err := replicator.Replicate(ctx, idx.Name)
		switch outcome {
		case migration.SchemaCreated:
			created++
		case migration.SchemaAlreadyExists:
			existed++
		default:
			// one bad index never halts the batch
			log.Error(err)
			failed = append(failed, idx.Name)
		}
	}

	log.Infof("schema replication done, created=%v already_exists=%v failed=%v", created, existed, len(failed))
	if len(failed) > 0 {
		log.Warnf("failed indices: %v", strings.Join(failed, ","))
	}
	return nil
}

// TransferCommand copies documents with the in-process scroll/bulk copier
type TransferCommand struct {
	Workers      int    `short:"w" long:"workers" description:"number of concurrent index transfers" default:"3"`
	ScrollTime   string `short:"t" long:"time" description:"scroll time" default:"10m"`
	DocCount     int    `long:"count" description:"documents per scroll page" default:"5000"`
	BulkSizeInMB int    `short:"b" long:"bulk_size" description:"bulk size in MB" default:"10"`
	RateLimit    int    `long:"rate_limit" description:"max documents per second, 0 means unlimited"`
	EventsFile   string `long:"events" description:"transfer event log, json lines" default:"migrate-events.log"`

	DateField string `long:"date_field" description:"date field for windowed transfer"`
	DateFrom  string `long:"date_from" description:"window start, inclusive, ie: 2020-01-01"`
	DateTo    string `long:"date_to" description:"window end, exclusive"`
	Yearly    bool   `long:"yearly" description:"run one calendar year at a time, sequentially"`
}

func (c *TransferCommand) parseWindowSpec() (*migration.WindowSpec, error) {
	if c.DateField == "" {
		if c.Yearly || c.DateFrom != "" || c.DateTo != "" {
			return nil, fmt.Errorf("windowed transfer needs --date_field")
		}
		return nil, nil
	}
	from, err := parseDate(c.DateFrom)
	if err != nil {
		return nil, fmt.Errorf("bad --date_from: %v", err)
	}
	to, err := parseDate(c.DateTo)
	if err != nil {
		return nil, fmt.Errorf("bad --date_to: %v", err)
	}
	if !from.Before(to) {
		return nil, fmt.Errorf("--date_from must be before --date_to")
	}
	return &migration.WindowSpec{Field: c.DateField, From: from, To: to, Yearly: c.Yearly}, nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

func (c *TransferCommand) Execute(args []string) error {
	spec, err := c.parseWindowSpec()
	if err != nil {
		return err
	}

	source, target, err := loadClusters()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	indices, err := enumerate(ctx, source)
	if err != nil {
		return err
	}

	eventsFile, err := os.OpenFile(c.EventsFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open event log: %v", err)
	}
	defer eventsFile.Close()
	events := migration.NewEventLog(eventsFile)
	defer events.Close()

	copier := migration.NewScrollBulkCopier(source, target)
	copier.ScrollTime = c.ScrollTime
	copier.DocBufferCount = c.DocCount
	copier.BulkSizeInMB = c.BulkSizeInMB
	if c.RateLimit > 0 {
		copier.Limiter = rate.NewLimiter(rate.Limit(c.RateLimit), c.RateLimit)
	}

	// bulk copies may run for hours, rely on context instead of the
	// shared client deadline
	util.SetRequestTimeout(0)

	progress.Start()
	scheduler := migration.NewTransferScheduler(c.Workers, copier, events)
	result := scheduler.Run(ctx, indices, spec)
	progress.Stop()

	log.Infof("transfer done, completed=%v failed=%v", len(result.CompletedNames()), len(result.FailedNames()))
	if failed := result.FailedNames(); len(failed) > 0 {
		log.Warnf("failed indices, re-run transfer for: %v", strings.Join(failed, ","))
		for _, err := range result.Errors {
			log.Error(err)
		}
	}
	return nil
}

// ReindexCommand starts server-side async copies and records the task ids
type ReindexCommand struct {
	DateField string `long:"date_field" description:"date field restricting the copy"`
	DateFrom  string `long:"date_from" description:"window start, inclusive"`
	DateTo    string `long:"date_to" description:"window end, exclusive"`
}

func (c *ReindexCommand) Execute(args []string) error {
	source, target, err := loadClusters()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	indices, err := enumerate(ctx, source)
	if err != nil {
		return err
	}

	var window *migration.Window
	if c.DateField != "" {
		from, err := parseDate(c.DateFrom)
		if err != nil {
			return fmt.Errorf("bad --date_from: %v", err)
		}
		to, err := parseDate(c.DateTo)
		if err != nil {
			return fmt.Errorf("bad --date_to: %v", err)
		}
		window = &migration.Window{Field: c.DateField, From: from, To: to}
	}

	store, err := task.OpenStore(opt.TaskDir, false)
	if err != nil {
		return err
	}
	defer store.Close()

	reindexer := migration.RemoteReindexer{
		Source:  source.Config,
		Target:  target,
		Tracker: &task.Tracker{Store: store, Target: target},
	}
	started, err := reindexer.Start(ctx, indices, window)
	log.Infof("started %v reindex tasks, ids recorded in %v", started, opt.TaskDir)
	return err
}

// TasksCommand polls recorded reindex tasks
type TasksCommand struct {
	Index string `short:"i" long:"index" description:"poll a single index instead of all recorded ones"`
}

func (c *TasksCommand) Execute(args []string) error {
	_, target, err := loadClusters()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	store, err := task.OpenStore(opt.TaskDir, true)
	if err != nil {
		return err
	}
	defer store.Close()

	tracker := task.Tracker{Store: store, Target: target}

	statuses := []task.Status{}
	if c.Index != "" {
		s, err := tracker.Poll(ctx, c.Index)
		if err != nil {
			return err
		}
		statuses = append(statuses, s)
	} else {
		statuses, err = tracker.PollAll(ctx)
		if err != nil {
			return err
		}
	}
	if len(statuses) == 0 {
		return fmt.Errorf("no recorded tasks in %v", opt.TaskDir)
	}

	for _, s := range statuses {
		switch {
		case s.Error != "":
			fmt.Printf("%-40v poll failed, task=%v error=%v\n", s.Index, s.TaskID, s.Error)
		case s.State == task.StateCompleted:
			fmt.Printf("%-40v %v success=%v failures=%v\n", s.Index, s.State, s.SuccessCount, s.FailureCount)
		case s.State == task.StateRunning:
			fmt.Printf("%-40v %v copied=%v\n", s.Index, s.State, s.SuccessCount)
		default:
			fmt.Printf("%-40v %v task=%v\n", s.Index, s.State, s.TaskID)
		}
	}
	return nil
}

// ReconcileCommand compares per-index counts between the clusters
type ReconcileCommand struct {
	Continuous bool `long:"continuous" description:"re-check on a fixed interval until interrupted"`
	Interval   int  `long:"interval" description:"seconds between continuous checks" default:"60"`
}

func (c *ReconcileCommand) Execute(args []string) error {
	source, target, err := loadClusters()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	indices, err := enumerate(ctx, source)
	if err != nil {
		return err
	}

	reconciler := migration.Reconciler{Source: source, Target: target}

	if !c.Continuous {
		fmt.Print(reconciler.Check(ctx, indices).String())
		return nil
	}

	reconciler.Watch(ctx, indices, time.Duration(c.Interval)*time.Second, func(r *migration.Report) {
		fmt.Printf("=== %v\n%v", time.Now().Format(time.RFC3339), r.String())
	})
	return nil
}

func main() {
	parser := goflags.NewParser(&opt, goflags.HelpFlag|goflags.PassDoubleDash)
	parser.AddCommand("schema", "replicate index schemas", "copy settings and mappings of every business index to the target cluster", &SchemaCommand{})
	parser.AddCommand("transfer", "copy documents", "scroll the source and bulk-index into the target with bounded parallelism", &TransferCommand{})
	parser.AddCommand("reindex", "start async remote reindex", "submit one server-side copy task per index and record the task ids", &ReindexCommand{})
	parser.AddCommand("tasks", "poll reindex tasks", "report the completion state of recorded reindex tasks", &TasksCommand{})
	parser.AddCommand("reconcile", "compare document counts", "classify every index as match, mismatch or missing and report overall progress", &ReconcileCommand{})

	parser.CommandHandler = func(command goflags.Commander, args []string) error {
		logger.SetLogging(opt.LogLevel, opt.LogFile)
		defer logger.Flush()
		if opt.DisableProgress {
			progress.SetEnabled(false)
		}
		return command.Execute(args)
	}

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*goflags.Error); ok && flagsErr.Type == goflags.ErrHelp {
			fmt.Println(err)
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
