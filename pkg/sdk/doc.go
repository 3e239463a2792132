// Package queryforge embeds the query reformulation pipeline in a Go program.
//
// A client binds a language model, an optional default searcher and the
// prompt catalog:
//
//	client, _ := queryforge.New(
//	    queryforge.WithOpenAI("http://localhost:8000/v1", "EMPTY", "qwen2.5-7b-instruct"),
//	    queryforge.WithSearcher("bm25", map[string]any{"index": "corpus.jsonl"}),
//	)
//	defer client.Close()
//
//	results, _ := client.Reformulate(ctx, "lamer", []queryforge.Query{
//	    {ID: "q1", Text: "flu symptoms"},
//	}, queryforge.ReformulateOptions{Params: map[string]any{"gen_num": 5}})
//
// Context-grounded methods (lamer, csqe, qa_expand, ...) retrieve from the
// default searcher unless ReformulateOptions.Contexts supplies the hits.
package queryforge
