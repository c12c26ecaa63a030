//go:build ceph

/*
Copyright (C) 2024-2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/


package metastore

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/ceph/go-ceph/rados"

	"github.com/chronoshard/qcoord/internal/dataset"
)

func init() {
	BackendRegistry["ceph"] = func(raw json.RawMessage) (Backend, error) {
		var cfg CephConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("metastore: invalid ceph config: %w", err)
		}
		return NewCeph(cfg)
	}
}

// CephConfig mirrors storage/persistence-ceph.go's CephFactory fields — same
// cluster/user/pool knobs, just addressing dataset-schema objects instead of
// column/log segments.
type CephConfig struct {
	UserName    string `json:"username"`
	ClusterName string `json:"cluster"`
	ConfFile    string `json:"conf_file"`
	Pool        string `json:"pool"`
	Prefix      string `json:"prefix"`
}

// Ceph is a RADOS-backed metastore Backend, gated behind the ceph build tag
// exactly as the teacher gates storage/persistence-ceph.go.
type Ceph struct {
	cfg CephConfig

	mu      sync.Mutex
	conn    *rados.Conn
	ioctx   *rados.IOContext
	opened  bool
}

// NewCeph returns a Ceph Backend lazily connecting on first use.
func NewCeph(cfg CephConfig) (*Ceph, error) {
	return &Ceph{cfg: cfg}, nil
}

func (c *Ceph) ensureOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.opened {
		return nil
	}

	conn, err := rados.NewConnWithClusterAndUser(c.cfg.ClusterName, c.cfg.UserName)
	if err != nil {
		return fmt.Errorf("metastore: ceph conn: %w", err)
	}
	if err := conn.ReadConfigFile(c.cfg.ConfFile); err != nil {
		return fmt.Errorf("metastore: ceph config: %w", err)
	}
	if err := conn.Connect(); err != nil {
		return fmt.Errorf("metastore: ceph connect: %w", err)
	}
	ioctx, err := conn.OpenIOContext(c.cfg.Pool)
	if err != nil {
		return fmt.Errorf("metastore: ceph pool %q: %w", c.cfg.Pool, err)
	}

	c.conn = conn
	c.ioctx = ioctx
	c.opened = true
	return nil
}

func (c *Ceph) object(ref dataset.Ref) string {
	db := ref.Database
	if db == "" {
		db = "default"
	}
	pfx := strings.TrimSuffix(c.cfg.Prefix, "/")
	if pfx == "" {
		return db + "/" + ref.Name
	}
	return pfx + "/" + db + "/" + ref.Name
}

func (c *Ceph) Load(ref dataset.Ref) (*dataset.Dataset, error) {
	if err := c.ensureOpen(); err != nil {
		return nil, err
	}
	stat, err := c.ioctx.Stat(c.object(ref))
	if err != nil {
		return nil, ErrNotFound
	}
	buf := make([]byte, stat.Size)
	n, err := c.ioctx.Read(c.object(ref), buf, 0)
	if err != nil {
		return nil, err
	}
	var rec datasetRecord
	if err := json.Unmarshal(buf[:n], &rec); err != nil {
		return nil, err
	}
	return rec.toDataset(), nil
}

func (c *Ceph) Save(ref dataset.Ref, d *dataset.Dataset) error {
	if err := c.ensureOpen(); err != nil {
		return err
	}
	raw, err := json.Marshal(toRecord(d))
	if err != nil {
		return err
	}
	return c.ioctx.WriteFull(c.object(ref), raw)
}

func (c *Ceph) Delete(ref dataset.Ref) error {
	if err := c.ensureOpen(); err != nil {
		return err
	}
	return c.ioctx.Delete(c.object(ref))
}

func (c *Ceph) List() ([]dataset.Ref, error) {
	if err := c.ensureOpen(); err != nil {
		return nil, err
	}
	iter, err := c.ioctx.Iter()
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	pfx := strings.TrimSuffix(c.cfg.Prefix, "/")
	if pfx != "" {
		pfx += "/"
	}

	var refs []dataset.Ref
	for iter.Next() {
		ref, ok := refFromKey(iter.Value(), pfx)
		if ok {
			refs = append(refs, ref)
		}
	}
	return refs, nil
}
