package domain

type ResourceName struct {
	Namespace string `json:"namespace"`
	Type      string `json:"type"`
	Subtype   string `json:"subtype"`
	Name      string `json:"name"`
}

type ResourceStatus struct {
	Name   ResourceName           `json:"name"`
	Status map[string]interface{} `json:"status"`
}
