package jira

type BoardConfiguration struct {
	ID           int          `json:"id"`
	Name         string       `json:"name"`
	ColumnConfig ColumnConfig `json:"columnConfig"`
}

type ColumnConfig struct {
	Columns []Column `json:"columns"`
}

type Column struct {
	Name     string      `json:"name"`
	Statuses []StatusRef `json:"statuses"`
}

type StatusRef struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type Issue struct {
	ID     string      `json:"id"`
	Key    string      `json:"key"`
	Fields IssueFields `json:"fields"`
}

type IssueFields struct {
	Summary string       `json:"summary"`
	Status  StatusRef    `json:"status"`
	Comment *CommentPage `json:"comment,omitempty"`
}

type CommentPage struct {
	Comments []Comment `json:"comments"`
	Total    int       `json:"total"`
}

type Comment struct {
	ID      string `json:"id"`
	Created string `json:"created"`
	Author  struct {
		DisplayName string `json:"displayName"`
	} `json:"author"`
}

type Transition struct {
	ID   string    `json:"id"`
	Name string    `json:"name"`
	To   StatusRef `json:"to"`
}

type CreatedIssue struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}
