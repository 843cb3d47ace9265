// Package config loads NodeAttributes from a TOML file and environment
// variables, in the teacher project's getDurEnv style generalized to a
// full struct (spec.md §2.2's ambient configuration stack). Precedence,
// highest first: an explicit NodeAttributes field set by the caller
// after Load returns, the TOML file, environment variables, then
// mtcore.DefaultNodeAttributes.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/mtcore/mtcore"
)

// File mirrors mtcore.NodeAttributes' shape for TOML decoding; zero
// fields are left at whatever Load's starting attributes already held,
// so a partial file only overrides what it mentions.
type File struct {
	Workers         *int  `toml:"workers"`
	MaxTasks        *int  `toml:"max_tasks"`
	MaxActions      *int  `toml:"max_actions"`
	MaxGroups       *int  `toml:"max_groups"`
	MaxQueues       *int  `toml:"max_queues"`
	MaxJobs         *int  `toml:"max_jobs"`
	Priorities      *int  `toml:"priorities"`
	QueueLimit      *int  `toml:"queue_limit"`
	ReuseMainThread *bool `toml:"reuse_main_thread"`
}

// envPrefix is prepended to every attribute's environment variable
// name, e.g. MTCORE_WORKERS.
const envPrefix = "MTCORE_"

// Load builds NodeAttributes starting from mtcore.DefaultNodeAttributes,
// applying environment variables, then the TOML file at path if it
// exists (a missing file is not an error; an unparsable one is).
func Load(path string) (mtcore.NodeAttributes, error) {
	attrs := mtcore.DefaultNodeAttributes()
	applyEnv(&attrs)

	if path == "" {
		return attrs, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return attrs, nil
	}

	var f File
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return attrs, err
	}
	applyFile(&attrs, &f)
	return attrs, nil
}

func applyFile(a *mtcore.NodeAttributes, f *File) {
	if f.Workers != nil {
		*a = a.WithWorkers(*f.Workers)
	}
	if f.MaxTasks != nil {
		*a = a.WithMaxTasks(*f.MaxTasks)
	}
	if f.MaxActions != nil {
		*a = a.WithMaxActions(*f.MaxActions)
	}
	if f.MaxGroups != nil {
		*a = a.WithMaxGroups(*f.MaxGroups)
	}
	if f.MaxQueues != nil {
		*a = a.WithMaxQueues(*f.MaxQueues)
	}
	if f.MaxJobs != nil {
		*a = a.WithMaxJobs(*f.MaxJobs)
	}
	if f.Priorities != nil {
		*a = a.WithPriorities(*f.Priorities)
	}
	if f.QueueLimit != nil {
		*a = a.WithQueueLimit(*f.QueueLimit)
	}
	if f.ReuseMainThread != nil {
		*a = a.WithReuseMainThread(*f.ReuseMainThread)
	}
}

func applyEnv(a *mtcore.NodeAttributes) {
	if v, ok := getIntEnv("WORKERS"); ok {
		*a = a.WithWorkers(v)
	}
	if v, ok := getIntEnv("MAX_TASKS"); ok {
		*a = a.WithMaxTasks(v)
	}
	if v, ok := getIntEnv("MAX_ACTIONS"); ok {
		*a = a.WithMaxActions(v)
	}
	if v, ok := getIntEnv("MAX_GROUPS"); ok {
		*a = a.WithMaxGroups(v)
	}
	if v, ok := getIntEnv("MAX_QUEUES"); ok {
		*a = a.WithMaxQueues(v)
	}
	if v, ok := getIntEnv("MAX_JOBS"); ok {
		*a = a.WithMaxJobs(v)
	}
	if v, ok := getIntEnv("PRIORITIES"); ok {
		*a = a.WithPriorities(v)
	}
	if v, ok := getIntEnv("QUEUE_LIMIT"); ok {
		*a = a.WithQueueLimit(v)
	}
}

func getIntEnv(suffix string) (int, bool) {
	s := os.Getenv(envPrefix + suffix)
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// GetDurEnv reads a time.Duration-valued environment variable, falling
// back to def on absence or parse failure — used by plugin
// configuration (e.g. the network plugin's dial timeout) that doesn't
// fit the NodeAttributes shape above.
func GetDurEnv(key string, def time.Duration) time.Duration {
	if s := os.Getenv(key); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 {
			return d
		}
	}
	return def
}
