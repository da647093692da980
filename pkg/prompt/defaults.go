package prompt

const (
	ChatModel   = "gpt-4o"
	Temperature = 0.7
)

const PersonaPrompt = "You are an expert Redshift SQL assistant. Generate an appropriate Redshift SQL query based on the table models provided and answer the user's question. Use sysdate instead of function Now"

const windowQuery = "SELECT *\n" +
	", COUNT(DISTINCT item) OVER(PARTITION BY DATE) AS distinct_count\n" +
	"FROM mytable;"

// GuidanceNotes are sent after the persona, in this order.
var GuidanceNotes = []string{
	"The query " + windowQuery + ` doesn't work, because the Redshift documentation says ` + "\n" +
		`                        "ALL is the default. DISTINCT is not supported." Instead, one will need to use the DENSE_RANK() function to get this count, with the item to be counted in the ORDER BY window clause.`,

	"For Redshift queries: avoid using functions in query predicates. Using them can drive up the cost of the query by requiring large numbers of rows to resolve the intermediate steps of the query.",

	"For Redshift queries: If possible, use a WHERE clause to restrict the dataset. The query planner can then use row order to help determine which records match the criteria, so it can skip scanning large numbers of disk blocks. Without this, the query execution engine must scan participating columns entirely.",

	"For Redshift queries: Add predicates to filter tables that participate in joins, even if the predicates apply the same filters. The query returns the same result set, but Amazon Redshift is able to filter the join tables before the scan step and can then efficiently skip scanning blocks from those tables. Redundant filters aren't needed if you filter on a column that's used in the join condition.",

	`When the query is including a timestamp expose the timestamp in the query result with the "time".`,

	`When the answer to the question is a timeseries, always order the result ascending by the "time" column.`,
}

const schemaSentence = "The possible values for %s are %s."

const userPromptTemplate = `Here are the table models: {{range $i, $t := .Model.Tables}}{{if $i}},

{{end}}{{$t.Table}}: {{$t.Type}}
    + columns
{{range $j, $c := $t.Columns}}{{if $j}}
{{end}}        {{$c.Name}}: {{$c.Type}}{{end}}{{end}}

How can I query the model with Redshift to answer the question: "{{.Question}}"? Include the query parameters in the result. Please name the timestamp column "time" and always order ascending if the answer to the question is a timeseries.`

const (
	queryEchoPrefix   = "Here is the query: "
	visualizeQuestion = "How can I visualize the query in a dashboard panel?"
)
