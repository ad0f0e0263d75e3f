// Command judge-enqueue pushes submission ids onto the judge queue.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"ojengine/internal/common/mq"
	"ojengine/internal/judge/service"
	"ojengine/pkg/utils/logger"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	defaultConfigPath = "configs/judge_worker.yaml"
	defaultTopic      = "judging"
)

// enqueueConfig is the part of the worker config this tool reads.
type enqueueConfig struct {
	Logger logger.Config `yaml:"logger"`
	Queue  struct {
		mq.Config `yaml:",inline"`
		Topic     string `yaml:"topic"`
	} `yaml:"queue"`
}

func main() {
	cmd := &cli.Command{
		Name:      "judge-enqueue",
		Usage:     "re-queue submissions for judging",
		ArgsUsage: "<submission-id>...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   defaultConfigPath,
				Usage:   "path to the judge worker config file",
			},
			&cli.StringFlag{
				Name:  "env",
				Value: ".env",
				Usage: "optional dotenv file loaded before the config is expanded",
			},
			&cli.StringFlag{
				Name:  "topic",
				Usage: "override the queue topic from the config",
			},
		},
		Action: enqueue,
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "judge-enqueue: %v\n", err)
		os.Exit(1)
	}
}

func enqueue(ctx context.Context, cmd *cli.Command) error {
	ids, err := parseIDs(cmd.Args().Slice())
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd.String("config"), cmd.String("env"))
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Logger); err != nil {
		return fmt.Errorf("init logger failed: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	topic := cfg.Queue.Topic
	if t := cmd.String("topic"); t != "" {
		topic = t
	}
	queue, err := mq.New(cfg.Queue.Config)
	if err != nil {
		return fmt.Errorf("init queue failed: %w", err)
	}
	defer func() {
		_ = queue.Close()
	}()

	dispatcher, err := service.NewDispatcher(queue, topic)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := dispatcher.Enqueue(ctx, id); err != nil {
			return err
		}
		logger.Info(ctx, "submission enqueued", zap.Int64("submission_id", id), zap.String("topic", topic))
	}
	fmt.Fprintf(os.Stdout, "enqueued %d submission(s) on %s\n", len(ids), topic)
	return nil
}

func parseIDs(args []string) ([]int64, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("at least one submission id is required")
	}
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		for _, part := range strings.Split(arg, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil || id <= 0 {
				return nil, fmt.Errorf("invalid submission id %q", part)
			}
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("at least one submission id is required")
	}
	return ids, nil
}

func loadConfig(path, envFile string) (*enqueueConfig, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load env file failed: %w", err)
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file failed: %w", err)
	}
	var cfg enqueueConfig
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("parse config file failed: %w", err)
	}
	if cfg.Queue.Topic == "" {
		cfg.Queue.Topic = defaultTopic
	}
	return &cfg, nil
}
