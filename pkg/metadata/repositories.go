package metadata

import "maps"

// defaultRepositories maps component image names to the GitHub repository
// their upstream code lives in. An empty value marks an image without a
// tracked upstream.
var defaultRepositories = map[string]string{
	"pipelines-cache-rhel9":                           "openshift-pipelines/tekton-caches",
	"pipelines-chains-controller-rhel9":               "tektoncd/chains",
	"pipelines-cli-tkn-rhel9":                         "tektoncd/cli",
	"pipelines-console-plugin-rhel9":                  "openshift-pipelines/console-plugin",
	"pipelines-controller-rhel9":                      "tektoncd/pipeline",
	"pipelines-entrypoint-rhel9":                      "tektoncd/pipeline",
	"pipelines-events-rhel9":                          "tektoncd/pipeline",
	"pipelines-git-init-rhel9":                        "openshift-pipelines/tektoncd-git-clone",
	"pipelines-hub-api-rhel9":                         "tektoncd/hub",
	"pipelines-hub-db-migration-rhel9":                "tektoncd/hub",
	"pipelines-hub-ui-rhel9":                          "tektoncd/hub",
	"pipelines-manual-approval-gate-controller-rhel9": "openshift-pipelines/manual-approval-gate",
	"pipelines-manual-approval-gate-webhook-rhel9":    "openshift-pipelines/manual-approval-gate",
	"pipelines-nop-rhel9":                             "tektoncd/pipeline",
	"pipelines-opc-rhel9":                             "",
	"pipelines-operator-bundle":                       "tektoncd/operator",
	"pipelines-operator-proxy-rhel9":                  "tektoncd/operator",
	"pipelines-operator-webhook-rhel9":                "tektoncd/operator",
	"pipelines-pipelines-as-code-cli-rhel9":           "openshift-pipelines/pipelines-as-code",
	"pipelines-pipelines-as-code-controller-rhel9":    "openshift-pipelines/pipelines-as-code",
	"pipelines-pipelines-as-code-watcher-rhel9":       "openshift-pipelines/pipelines-as-code",
	"pipelines-pipelines-as-code-webhook-rhel9":       "openshift-pipelines/pipelines-as-code",
	"pipelines-pruner-controller-rhel9":               "openshift-pipelines/tektoncd-pruner",
	"pipelines-resolvers-rhel9":                       "tektoncd/pipeline",
	"pipelines-results-api-rhel9":                     "tektoncd/results",
	"pipelines-results-retention-policy-agent-rhel9":  "tektoncd/results",
	"pipelines-results-watcher-rhel9":                 "tektoncd/results",
	"pipelines-rhel9-operator":                        "openshift-pipelines/operator",
	"pipelines-sidecarlogresults-rhel9":               "tektoncd/pipeline",
	"pipelines-triggers-controller-rhel9":             "tektoncd/triggers",
	"pipelines-triggers-core-interceptors-rhel9":      "tektoncd/triggers",
	"pipelines-triggers-eventlistenersink-rhel9":      "tektoncd/triggers",
	"pipelines-triggers-webhook-rhel9":                "tektoncd/triggers",
	"pipelines-webhook-rhel9":                         "tektoncd/pipeline",
	"pipelines-workingdirinit-rhel9":                  "tektoncd/pipeline",
}

// RepositoryTable is a read-only lookup from repo key to upstream repository.
type RepositoryTable struct {
	entries map[string]string
}

// NewRepositoryTable builds the default table with overrides applied on top.
// An override with an empty value marks the image as untracked.
func NewRepositoryTable(overrides map[string]string) RepositoryTable {
	entries := maps.Clone(defaultRepositories)
	maps.Copy(entries, overrides)
	return RepositoryTable{entries: entries}
}

// Lookup returns the upstream repository of key. ok is false when the key is
// not in the table; a tracked-but-empty entry returns "", true.
func (rt RepositoryTable) Lookup(key string) (repo string, ok bool) {
	repo, ok = rt.entries[key]
	return repo, ok
}

// Len returns the number of entries.
func (rt RepositoryTable) Len() int {
	return len(rt.entries)
}
