package envcatalog

// Variables vat sets in every launched process.
const (
	PackageVar     = "VAT_PACKAGE"
	PackageRootVar = "VAT_PACKAGE_ROOT"
	LaunchIDVar    = "VAT_LAUNCH_ID"
)

type VarInfo struct {
	Category    string
	Name        string
	Description string
	Dynamic     bool
	Internal    bool
}

func Catalog() []VarInfo {
	return []VarInfo{
		{
			Category:    "Config",
			Name:        "VAT_CONFIG",
			Description: "Path to the vat config file.",
		},
		{
			Category:    "Config",
			Name:        "VAT_<FLAG>",
			Dynamic:     true,
			Description: "Set any vat CLI flag via environment (hyphens become underscores). Example: VAT_REPOSITORY=/studio/vat.",
		},
		{
			Category:    "Config",
			Name:        "VAT_APP_DIR",
			Description: "Directory holding the registry lock, stacks and launch history.",
		},
		{
			Category:    "Config",
			Name:        "VAT_REPOSITORY",
			Description: "Root of the package repository.",
		},
		{
			Category:    "Config",
			Name:        "XDG_CONFIG_HOME",
			Description: "Base directory for the default app dir and config search path.",
		},
		{
			Category:    "Environment",
			Name:        "VAT_SEPARATOR",
			Description: "Separator used when environment blocks append or prepend values.",
		},
		{
			Category:    "Logging",
			Name:        "VAT_LOG_LEVEL",
			Description: "Log level for vat output (debug, info, warn, error).",
		},
		{
			Category:    "Output",
			Name:        "NO_COLOR",
			Description: "Disable ANSI color output (any non-empty value).",
		},
		{
			Category:    "CLI",
			Name:        "VAT_YES",
			Description: "Auto-approve confirmations (equivalent to passing --yes).",
		},
		{
			Category:    "Launch",
			Name:        "VAT_HISTORY",
			Description: "Set to false to stop recording launches in the history database.",
		},
		{
			Category:    "Launch",
			Name:        PackageVar,
			Internal:    true,
			Description: "Set in launched processes to the primary package reference.",
		},
		{
			Category:    "Launch",
			Name:        PackageRootVar,
			Internal:    true,
			Description: "Set in launched processes to the primary package root directory.",
		},
		{
			Category:    "Launch",
			Name:        LaunchIDVar,
			Internal:    true,
			Description: "Set in launched processes to the history record ID.",
		},
	}
}
