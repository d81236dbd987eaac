package main

import (
	"flag"
	"os"

	"github.com/4D43/platterdb/conf"
	"github.com/4D43/platterdb/engine"
	"github.com/4D43/platterdb/logger"
	"github.com/4D43/platterdb/util"
)

func main() {
	configPath := flag.String("config", "", "path to an ini configuration file")
	flag.Parse()

	cfg := conf.NewCfg()
	if *configPath != "" {
		loaded, st := conf.Load(*configPath)
		if !st.IsOK() {
			logger.Errorf("configuration %s rejected: %s", *configPath, st)
			os.Exit(1)
		}
		cfg = loaded
	}
	logger.InitLogger(logger.LogConfig{LogLevel: cfg.LogLevel})

	eng, st := engine.Open(engine.ConfigFrom(cfg))
	if !st.IsOK() {
		logger.Errorf("engine open failed: %s", st)
		os.Exit(1)
	}

	dm := eng.DiskManager
	logger.Infof("disks under %s: %v", cfg.DisksRoot, util.ListDirNames(cfg.DisksRoot))
	logger.Infof("disk %s: %d logical blocks of %d bytes, %d free sectors",
		dm.Name(), dm.TotalLogicalBlocks(), dm.BlockSize(), dm.FreePhysicalSectors())
	logger.Infof("catalog page %d, tables: %v", eng.Catalog.CatalogPageID(), eng.Catalog.ListTables())

	if st := eng.Close(); !st.IsOK() {
		logger.Errorf("engine close reported: %s", st)
		os.Exit(1)
	}
}
