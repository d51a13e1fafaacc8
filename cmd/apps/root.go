/*
 Copyright 2023 NanaFS Authors.

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

package apps

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/spf13/cobra"

	"github.com/basenana/nanatree/cmd/apps/apis"
	configapp "github.com/basenana/nanatree/cmd/apps/config"
	"github.com/basenana/nanatree/config"
	"github.com/basenana/nanatree/pkg/dispatch"
	"github.com/basenana/nanatree/pkg/identity"
	"github.com/basenana/nanatree/pkg/indexer"
	"github.com/basenana/nanatree/pkg/metastore"
	"github.com/basenana/nanatree/pkg/object"
	"github.com/basenana/nanatree/pkg/pathmgr"
	"github.com/basenana/nanatree/pkg/storage"
	"github.com/basenana/nanatree/pkg/tree"
	"github.com/basenana/nanatree/utils"
	"github.com/basenana/nanatree/utils/logger"
)

const (
	accountCacheSize       = 1024
	accountCacheExpiration = time.Minute * 5
)

var resolveUser int64

func init() {
	RootCmd.AddCommand(daemonCmd)
	RootCmd.AddCommand(versionCmd)
	RootCmd.AddCommand(usageCmd)
	RootCmd.AddCommand(resolveCmd)
	RootCmd.AddCommand(configapp.RunCmd)
	usageCmd.AddCommand(usageRebuildCmd)
}

var RootCmd = &cobra.Command{
	Use:   "nanatree",
	Short: "NanaTree item tree server",
	Long:  `Hierarchical item tree with locking, sharing and resumable bulk operations.`,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

func init() {
	defaultConfig := path.Join(config.LocalUserPath(), config.DefaultConfigBase)
	for _, cmd := range []*cobra.Command{daemonCmd, usageCmd, resolveCmd} {
		cmd.PersistentFlags().StringVar(&config.FilePath, "config", defaultConfig, "nanatree config file")
	}
	resolveCmd.Flags().Int64Var(&resolveUser, "user", 0, "resolve as this account id")
}

type depends struct {
	cfg   config.Config
	meta  metastore.Meta
	ident identity.Provider
	tree  *tree.Manager
}

func initDepends() (*depends, error) {
	loader := config.NewConfigLoader()
	cfg, err := loader.GetConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Debug {
		logger.SetDebug(cfg.Debug)
	}

	meta, err := metastore.NewMetaStorage(cfg.Meta.Type, cfg.Meta)
	if err != nil {
		return nil, err
	}
	if len(cfg.Storages) == 0 {
		return nil, fmt.Errorf("storage must config")
	}
	sto, err := storage.NewStorage(cfg.Storages[0])
	if err != nil {
		return nil, err
	}

	ident := identity.NewCachedProvider(identity.NewStaticProvider(cfg.Identity, cfg.Tree), accountCacheSize, accountCacheExpiration)
	mgr := tree.New(meta, object.NewStore(sto), ident, indexer.NewMem(), cfg)
	return &depends{cfg: cfg, meta: meta, ident: ident, tree: mgr}, nil
}

var daemonCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start server service",
	Run: func(cmd *cobra.Command, args []string) {
		dep, err := initDepends()
		if err != nil {
			panic(err)
		}
		stop := utils.HandleTerminalSignal()
		run(dep, stop)
	},
}

func run(dep *depends, stopCh chan struct{}) {
	log := logger.NewLogger("nanatree")
	log.Infow("starting", "version", config.VersionInfo().Version())

	dispatcher := dispatch.NewDispatcher(dep.tree.Queue(), dep.cfg.Queue)
	dispatcher.AddMaintenance("purge_expired_locks", func(ctx context.Context) error {
		dep.tree.Locks().PurgeExpired(ctx)
		return nil
	})
	go dispatcher.Run(stopCh)

	if dep.cfg.Api.Enable {
		s, err := apis.NewApiServer(dep.tree.Queue(), dep.cfg)
		if err != nil {
			log.Panicw("init http server failed", "err", err.Error())
		}
		go s.Run(stopCh)
	}

	log.Info("started")
	<-stopCh
	time.Sleep(time.Second * 5)
	log.Info("stopped")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "View version information",
	Run: func(cmd *cobra.Command, args []string) {
		vInfo := config.VersionInfo()
		fmt.Printf("Version: %s\n", vInfo.Version())
		fmt.Printf("GitCommit: %s\n", vInfo.Git)
	},
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Usage totals per owner",
	Run: func(cmd *cobra.Command, args []string) {
		dep, err := initDepends()
		if err != nil {
			panic(err)
		}
		usages, err := dep.meta.ListUsage(context.Background())
		if err != nil {
			panic(err)
		}
		printJson(usages)
	},
}

var usageRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild usage totals from the item table",
	Run: func(cmd *cobra.Command, args []string) {
		dep, err := initDepends()
		if err != nil {
			panic(err)
		}
		if err = dep.tree.RebuildUsage(context.Background()); err != nil {
			panic(err)
		}
		fmt.Println("usage rebuilt")
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <path>",
	Short: "Print the item a path points to",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dep, err := initDepends()
		if err != nil {
			panic(err)
		}
		resolver := pathmgr.NewResolver(dep.meta, dep.tree.Access(), dep.ident)
		item, err := resolver.Resolve(context.Background(), resolveUser, args[0])
		if err != nil {
			fmt.Printf("resolve %s failed: %s\n", args[0], err)
			return
		}
		printJson(item)
	},
}

func printJson(obj interface{}) {
	raw, err := json.MarshalIndent(obj, "", "    ")
	if err != nil {
		fmt.Printf("marshal failed: %s\n", err.Error())
		return
	}
	fmt.Println(string(raw))
}
