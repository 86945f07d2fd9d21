package api

// PhysicalNode describes this host as a node of the emulation.
type PhysicalNode struct {
	ObjID       int             `yaml:"id"`
	Name        string          `yaml:"name"`
	NodeDir     string          `yaml:"nodeDir"` // empty: <session dir>/<name>.conf
	PrivateDirs []string        `yaml:"privateDirs"`
	Files       []NodeFile      `yaml:"files"`
	Interfaces  []NodeInterface `yaml:"interfaces"`
	Services    []Service       `yaml:"services"`
}

// NodeInterface requests one interface on the physical node, tunneled to Network.
type NodeInterface struct {
	Index     *int           `yaml:"index,omitempty"`
	Name      string         `yaml:"name,omitempty"`
	Network   int            `yaml:"network"`
	Addresses []string       `yaml:"addresses"`
	Mac       string         `yaml:"mac,omitempty"`
	Link      LinkProperties `yaml:"link,omitempty"`
}

// NodeFile is written below the node directory at boot.
type NodeFile struct {
	Path     string `yaml:"path"`
	Contents string `yaml:"contents"`
	Mode     uint32 `yaml:"mode,omitempty"` // default 0644
}

// Service is a startup unit run on the node, ordered by StartIndex.
type Service struct {
	Name       string   `yaml:"name"`
	StartIndex int      `yaml:"startIndex"`
	Startup    []string `yaml:"startup"`
	Validate   []string `yaml:"validate"`
}

// VirtualNode is a container peer attached to one emulated network.
type VirtualNode struct {
	Name    string         `yaml:"name"`
	Image   string         `yaml:"image"`
	Network int            `yaml:"network"`
	Ipv4    string         `yaml:"ipv4"`
	Link    LinkProperties `yaml:"link,omitempty"`

	NetNs string `yaml:"-"`
}
