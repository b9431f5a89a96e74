package transport

// Middleware decorates an AnswerCreator.
type Middleware func(AnswerCreator) AnswerCreator

// Chain composes middlewares so that the first one listed runs outermost:
// Chain(a, b, c)(h) == a(b(c(h))).
func Chain(middlewares ...Middleware) Middleware {
	return func(next AnswerCreator) AnswerCreator {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
