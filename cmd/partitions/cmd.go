// Copyright 2025 StreamNative, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package partitions

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/streamnative/tranche/partition"
)

var (
	shardCount uint32

	Cmd = &cobra.Command{
		Use:   "partitions",
		Short: "Print the price partition table",
		Long:  `Print the price range owned by each shard for a given shard count`,
		RunE:  exec,
	}
)

func init() {
	Cmd.Flags().Uint32VarP(&shardCount, "shards", "s", 8, "Number of price shards")
}

func exec(*cobra.Command, []string) error {
	config, err := partition.NewConfig(shardCount)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 4, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SHARD\tMIN\tMAX\tWIDTH")
	for shard := partition.ShardID(0); shard < partition.ShardID(config.Count()); shard++ {
		r := config.ShardRange(shard)
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n",
			shard,
			humanize.Comma(int64(r.Min)),
			humanize.Comma(int64(r.Max)),
			humanize.Comma(int64(r.Max-r.Min)),
		)
	}
	return w.Flush()
}
