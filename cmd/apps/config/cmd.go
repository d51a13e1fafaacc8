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

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path"

	"github.com/spf13/cobra"

	"github.com/basenana/nanatree/config"
)

var WorkSpace string

func init() {
	RunCmd.AddCommand(initCmd)
	RunCmd.PersistentFlags().StringVar(&WorkSpace, "workspace", config.LocalUserPath(), "nanatree workspace")
}

func localConfigFilePath(workspace string) string {
	return path.Join(workspace, config.DefaultConfigBase)
}

var RunCmd = &cobra.Command{
	Use:   "config",
	Short: "nanatree config management",
	Run: func(cmd *cobra.Command, args []string) {
		configPath := localConfigFilePath(WorkSpace)
		fmt.Printf("Workspace Config: %s\n\n", configPath)

		config.FilePath = configPath
		cfg, err := config.NewConfigLoader().GetConfig()
		if err != nil {
			fmt.Printf("load config failed: %s\n", err.Error())
			fmt.Println("Generate local configuration with 'nanatree config init'")
			return
		}

		raw, err := json.MarshalIndent(cfg, "", "    ")
		if err != nil {
			fmt.Printf("marshal config failed: %s\n", err.Error())
			return
		}
		fmt.Println(string(raw))
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "generate local configuration",
	Run: func(cmd *cobra.Command, args []string) {
		initDefaultConfig()
	},
}

func initDefaultConfig() {
	fmt.Printf("Workspace: %s\n", WorkSpace)
	configPath := localConfigFilePath(WorkSpace)
	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("config %s already exists\n", configPath)
		return
	}

	cfg, err := config.DefaultConfig(WorkSpace)
	if err != nil {
		fmt.Printf("init workspace failed: %s\n", err.Error())
		return
	}
	fmt.Printf("Workspace Data Dir: %s\n", cfg.Storages[0].LocalDir)
	fmt.Printf("Workspace Database File: %s\n", cfg.Meta.Path)

	raw, _ := json.MarshalIndent(cfg, "", "    ")
	if err = os.WriteFile(configPath, raw, 0644); err != nil {
		fmt.Printf("write config file failed: %s\n", err.Error())
		return
	}
	fmt.Printf("Workspace Config: %s\n", configPath)
	fmt.Println("Generate local configuration succeed")
}
